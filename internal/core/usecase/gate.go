package usecase

import "sync"

// InferenceGate serializes calls into the inference runtime. The underlying
// numeric runtime is not guaranteed reentrant, so at most one
// segmentation/classification chain runs per process at a time. One gate is
// constructed at bootstrap and shared by every pipeline instance.
type InferenceGate struct {
	mu sync.Mutex
}

func NewInferenceGate() *InferenceGate {
	return &InferenceGate{}
}

func (g *InferenceGate) Serialize(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}
