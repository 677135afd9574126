package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
)

type fakeIngestor struct {
	record    *domain.GarmentRecord
	duplicate bool
	err       error

	deleteFound bool
	deletedIDs  []string

	reprocessed []string
}

func (f *fakeIngestor) AddItem(_ context.Context, userID, _ string) (*domain.GarmentRecord, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return f.record, f.duplicate, nil
}

func (f *fakeIngestor) DeleteItem(_ context.Context, _, itemID string) (bool, error) {
	f.deletedIDs = append(f.deletedIDs, itemID)
	return f.deleteFound, nil
}

func (f *fakeIngestor) ReprocessItem(_ context.Context, _, itemID string) (*domain.GarmentRecord, error) {
	f.reprocessed = append(f.reprocessed, itemID)
	return f.record, nil
}

type fakeStore struct {
	records    []domain.GarmentRecord
	getErr     error
	listedFor  []string
	lastGotID  string
	lastUserID string
}

func (f *fakeStore) List(_ context.Context, userID string) ([]domain.GarmentRecord, error) {
	f.listedFor = append(f.listedFor, userID)
	return f.records, nil
}

func (f *fakeStore) Get(_ context.Context, userID, id string) (*domain.GarmentRecord, error) {
	f.lastUserID = userID
	f.lastGotID = id
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := range f.records {
		if f.records[i].ID == id {
			return &f.records[i], nil
		}
	}
	return nil, domain.WrapError(domain.ErrItemNotFound, "get record", fmt.Errorf("item %s", id))
}

func (f *fakeStore) FindByFingerprint(context.Context, string, string) (*domain.GarmentRecord, error) {
	return nil, nil
}

func (f *fakeStore) Append(context.Context, string, *domain.GarmentRecord) error { return nil }
func (f *fakeStore) Update(context.Context, string, *domain.GarmentRecord) error { return nil }
func (f *fakeStore) Delete(context.Context, string, string) (bool, error)        { return false, nil }

type fakeAggregator struct {
	values       *domain.WardrobeValues
	distribution *domain.WardrobeDistribution
}

func (f *fakeAggregator) Distinct(context.Context, string) (*domain.WardrobeValues, error) {
	return f.values, nil
}

func (f *fakeAggregator) Distribution(context.Context, string) (*domain.WardrobeDistribution, error) {
	return f.distribution, nil
}

type fakeQueue struct {
	published []domain.ReprocessJob
}

func (f *fakeQueue) PublishReprocess(_ context.Context, job domain.ReprocessJob) error {
	f.published = append(f.published, job)
	return nil
}

func (f *fakeQueue) SubscribeReprocess(context.Context, func(context.Context, domain.ReprocessJob) error) error {
	return nil
}

type routerFixture struct {
	ingestor   *fakeIngestor
	store      *fakeStore
	aggregator *fakeAggregator
	queue      *fakeQueue
	handler    http.Handler
}

func newRouterFixture(t *testing.T, secret string, rps float64, burst int) *routerFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	fx := &routerFixture{
		ingestor: &fakeIngestor{
			record: &domain.GarmentRecord{ID: "item-1", SourceImagePath: "item-1/original.png"},
		},
		store: &fakeStore{},
		aggregator: &fakeAggregator{
			values: &domain.WardrobeValues{GarmentClasses: []string{"upper_body"}},
			distribution: &domain.WardrobeDistribution{
				GarmentClasses: []domain.CountEntry{{Name: "upper_body", Count: 2}},
			},
		},
		queue: &fakeQueue{},
	}
	router := NewRouter(RouterDeps{
		Ingestor:        fx.ingestor,
		Aggregator:      fx.aggregator,
		Store:           fx.store,
		Queue:           fx.queue,
		Auth:            NewAuthenticator(secret, nil, logger),
		UploadRateRPS:   rps,
		UploadRateBurst: burst,
		Logger:          logger,
	})
	fx.handler = router.Handler()
	return fx
}

func multipartUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("not-really-a-png")); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return body, writer.FormDataContentType()
}

func TestUploadReturnsCreated(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)

	body, contentType := multipartUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/api/user/closet/items", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var payload itemResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Duplicate {
		t.Fatal("fresh upload should not be flagged duplicate")
	}
	if payload.Item == nil || payload.Item.ID != "item-1" {
		t.Fatalf("unexpected item payload %+v", payload.Item)
	}
}

func TestUploadDuplicateReturnsOK(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)
	fx.ingestor.duplicate = true

	body, contentType := multipartUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/api/user/closet/items", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("duplicate upload expected 200, got %d", res.Code)
	}
	var payload itemResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if !payload.Duplicate {
		t.Fatal("expected duplicate flag")
	}
}

func TestUploadMissingFileReturns400(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)

	req := httptest.NewRequest(http.MethodPost, "/api/user/closet/items", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadRateLimitReturns429(t *testing.T) {
	fx := newRouterFixture(t, "", 0.001, 1)

	body1, contentType1 := multipartUpload(t)
	req1 := httptest.NewRequest(http.MethodPost, "/api/user/closet/items", body1)
	req1.Header.Set("Content-Type", contentType1)
	res1 := httptest.NewRecorder()
	fx.handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusCreated {
		t.Fatalf("first upload expected 201, got %d", res1.Code)
	}

	body2, contentType2 := multipartUpload(t)
	req2 := httptest.NewRequest(http.MethodPost, "/api/user/closet/items", body2)
	req2.Header.Set("Content-Type", contentType2)
	res2 := httptest.NewRecorder()
	fx.handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
}

func TestGetUnknownItemReturns404(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/user/closet/items/ghost", nil)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDeleteItem(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)
	fx.ingestor.deleteFound = true

	req := httptest.NewRequest(http.MethodDelete, "/api/user/closet/items/item-1", nil)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}

	fx.ingestor.deleteFound = false
	req2 := httptest.NewRequest(http.MethodDelete, "/api/user/closet/items/ghost", nil)
	res2 := httptest.NewRecorder()
	fx.handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusNotFound {
		t.Fatalf("unknown delete expected 404, got %d", res2.Code)
	}
}

func TestReprocessQueuesJob(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)
	fx.store.records = []domain.GarmentRecord{{ID: "item-1"}}

	req := httptest.NewRequest(http.MethodPost, "/api/user/closet/items/item-1/reprocess", nil)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(fx.queue.published) != 1 || fx.queue.published[0].ItemID != "item-1" {
		t.Fatalf("expected one published job, got %+v", fx.queue.published)
	}
	if len(fx.ingestor.reprocessed) != 0 {
		t.Fatal("queued reprocess must not run inline")
	}
}

func TestReprocessUnknownItemReturns404(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)

	req := httptest.NewRequest(http.MethodPost, "/api/user/closet/items/ghost/reprocess", nil)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if len(fx.queue.published) != 0 {
		t.Fatal("unknown item must not be queued")
	}
}

func TestValuesEndpoint(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/user/closet/values", nil)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var values domain.WardrobeValues
	if err := json.Unmarshal(res.Body.Bytes(), &values); err != nil {
		t.Fatal(err)
	}
	if len(values.GarmentClasses) != 1 || values.GarmentClasses[0] != "upper_body" {
		t.Fatalf("unexpected values %+v", values)
	}
}

func TestExportReturnsWorkbook(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)
	fx.store.records = []domain.GarmentRecord{{
		ID:              "item-1",
		SourceImagePath: "item-1/original.png",
		Cutouts:         map[string]string{"1": "item-1/cutout_1.png"},
		ClassificationResults: map[string]domain.LabelSet{
			"1": {domain.CategoryColor: "black"},
		},
		CreatedAt: time.Now().UTC(),
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/user/closet/export", nil)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", got)
	}
	if res.Body.Len() == 0 {
		t.Fatal("expected workbook bytes")
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	fx := newRouterFixture(t, "test-secret", 100, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/user/closet/items", nil)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestAuthAcceptsSignedToken(t *testing.T) {
	const secret = "test-secret"
	fx := newRouterFixture(t, secret, 100, 100)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, wardrobeClaims{
		Email: "u@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/user/closet/items", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(fx.store.listedFor) != 1 || fx.store.listedFor[0] != "user-42" {
		t.Fatalf("expected listing scoped to token subject, got %v", fx.store.listedFor)
	}
}

func TestHealthz(t *testing.T) {
	fx := newRouterFixture(t, "", 100, 100)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	fx.handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
