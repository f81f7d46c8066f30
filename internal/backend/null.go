package backend

import (
	"context"

	"nexus/internal/model"
)

// NullOCR and NullVision satisfy the external-collaborator interfaces
// with no external process configured: "no failure means empty list." They
// let the fallback path in the Diff & Summary component degrade
// gracefully instead of requiring OCR/vision wiring to exist at all.
type nullFallback struct {
	source model.Source
}

func NewNullOCR() Backend    { return &nullFallback{source: model.SourceOCR} }
func NewNullVision() Backend { return &nullFallback{source: model.SourceVision} }

func (n *nullFallback) Source() model.Source { return n.source }

func (n *nullFallback) Open(ctx context.Context) error  { return nil }
func (n *nullFallback) Close(ctx context.Context) error { return nil }

func (n *nullFallback) Health(ctx context.Context) Status {
	return Status{Healthy: true, Detail: "no external OCR/vision process configured"}
}

func (n *nullFallback) Acquire(ctx context.Context, q Query) (*RawGraph, error) {
	return &RawGraph{Roots: nil}, nil
}

func (n *nullFallback) Fingerprint(ctx context.Context, q Query) (string, error) {
	return "", nil
}

func (n *nullFallback) Perform(ctx context.Context, rawRef any, action Action) (Result, error) {
	return Result{}, model.NewError(model.ErrBackendUnavailable, "%s backend has no configured implementation", n.source)
}
