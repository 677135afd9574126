package httpadapter

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
	"github.com/anshultibby/pocket-fashion/internal/core/ports"
	"github.com/anshultibby/pocket-fashion/internal/observability/metrics"
)

type RouterDeps struct {
	Ingestor   ports.WardrobeIngestor
	Aggregator ports.WardrobeAggregator
	Store      ports.ClosetStore
	Queue      ports.JobQueue
	Auth       *Authenticator

	UploadRateRPS   float64
	UploadRateBurst int
	MaxUploadBytes  int64

	Metrics *metrics.HTTPServerMetrics
	Service string
	Logger  *slog.Logger
}

type Router struct {
	ingestor   ports.WardrobeIngestor
	aggregator ports.WardrobeAggregator
	store      ports.ClosetStore
	queue      ports.JobQueue
	auth       *Authenticator
	limiter    *uploadLimiter

	maxUploadBytes int64
	metrics        *metrics.HTTPServerMetrics
	service        string
	logger         *slog.Logger
}

func NewRouter(deps RouterDeps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 15 << 20
	}
	return &Router{
		ingestor:       deps.Ingestor,
		aggregator:     deps.Aggregator,
		store:          deps.Store,
		queue:          deps.Queue,
		auth:           deps.Auth,
		limiter:        newUploadLimiter(deps.UploadRateRPS, deps.UploadRateBurst),
		maxUploadBytes: maxUpload,
		metrics:        deps.Metrics,
		service:        deps.Service,
		logger:         logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)

	api := http.NewServeMux()
	api.HandleFunc("/api/user/closet/items", rt.items)
	api.HandleFunc("/api/user/closet/items/", rt.itemByID)
	api.HandleFunc("/api/user/closet/values", rt.values)
	api.HandleFunc("/api/user/closet/distribution", rt.distribution)
	api.HandleFunc("/api/user/closet/export", rt.export)
	mux.Handle("/api/", rt.auth.Middleware(api))

	return requestIDMiddleware(accessLogMiddleware(rt.logger, mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) items(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.uploadItem(w, r)
	case http.MethodGet:
		rt.listItems(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

type itemResponse struct {
	Item      *domain.GarmentRecord `json:"item"`
	Duplicate bool                  `json:"duplicate"`
}

func (rt *Router) uploadItem(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	if !rt.limiter.allow(rateLimitKey(r)) {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many uploads"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	tmpPath, err := spoolUpload(file, fileHeader.Filename)
	if err != nil {
		rt.logger.Error("spool upload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read upload"})
		return
	}
	defer os.Remove(tmpPath)

	start := time.Now()
	record, duplicate, err := rt.ingestor.AddItem(r.Context(), user.ID, tmpPath)
	if err != nil {
		rt.writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.ObserveUploadBytes(rt.service, fileHeader.Size)
		rt.metrics.ObserveIngestDuration(rt.service, time.Since(start))
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, itemResponse{Item: record, Duplicate: duplicate})
}

// spoolUpload lands the multipart stream on disk so inference stages can
// reopen it by path. The original extension survives for decoders that key
// off it.
func spoolUpload(file io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (rt *Router) listItems(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	records, err := rt.store.List(r.Context(), user.ID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.GarmentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (rt *Router) itemByID(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/user/closet/items/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item id is required"})
		return
	}

	if id, found := strings.CutSuffix(rest, "/reprocess"); found {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		rt.reprocessItem(w, r, user.ID, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := rt.store.Get(r.Context(), user.ID, rest)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		found, err := rt.ingestor.DeleteItem(r.Context(), user.ID, rest)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// reprocessItem queues the job when a queue is wired, otherwise runs the
// pipeline inline. The item must exist either way so callers get a 404
// instead of a silently dropped job.
func (rt *Router) reprocessItem(w http.ResponseWriter, r *http.Request, userID, itemID string) {
	if _, err := rt.store.Get(r.Context(), userID, itemID); err != nil {
		rt.writeError(w, err)
		return
	}

	if rt.queue != nil {
		job := domain.ReprocessJob{UserID: userID, ItemID: itemID}
		if err := rt.queue.PublishReprocess(r.Context(), job); err != nil {
			rt.writeError(w, err)
			return
		}
		if rt.metrics != nil {
			rt.metrics.RecordReprocessQueued(rt.service)
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	record, err := rt.ingestor.ReprocessItem(r.Context(), userID, itemID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) values(w http.ResponseWriter, r *http.Request) {
	user, ok := rt.requireGet(w, r)
	if !ok {
		return
	}

	values, err := rt.aggregator.Distinct(r.Context(), user.ID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (rt *Router) distribution(w http.ResponseWriter, r *http.Request) {
	user, ok := rt.requireGet(w, r)
	if !ok {
		return
	}

	distribution, err := rt.aggregator.Distribution(r.Context(), user.ID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, distribution)
}

func (rt *Router) export(w http.ResponseWriter, r *http.Request) {
	user, ok := rt.requireGet(w, r)
	if !ok {
		return
	}

	records, err := rt.store.List(r.Context(), user.ID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	distribution, err := rt.aggregator.Distribution(r.Context(), user.ID)
	if err != nil {
		rt.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="wardrobe.xlsx"`)
	if err := writeWorkbook(w, records, distribution); err != nil {
		rt.logger.Error("workbook export failed", "user_id", user.ID, "error", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport(rt.service)
	}
}

func (rt *Router) requireGet(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return domain.User{}, false
	}
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return domain.User{}, false
	}
	return user, true
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		rt.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
