// Package model loads per-domain classifier artifacts and serves predictions
// from immutable handles that can be swapped atomically at runtime.
package model

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/metrics"
	"github.com/medirisk-server/internal/schema"
)

// snapshot is never mutated after it is published
type snapshot struct {
	handles  map[string]*Handle
	failures map[string]*domain.ModelLoadError
}

// Registry holds the published model handle for every domain.
// Readers load the current snapshot without locking; writers build a new
// snapshot and publish it with a single atomic store.
type Registry struct {
	schemas *schema.Registry
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	current  atomic.Pointer[snapshot]
	inflight singleflight.Group
}

// NewRegistry creates an empty registry
func NewRegistry(schemas *schema.Registry, logger *logrus.Logger, m *metrics.Metrics) *Registry {
	r := &Registry{
		schemas: schemas,
		logger:  logger,
		metrics: m,
	}
	r.current.Store(&snapshot{
		handles:  map[string]*Handle{},
		failures: map[string]*domain.ModelLoadError{},
	})
	return r
}

// Load reads an artifact and publishes it for the domain.
// A failed load records the failure for that domain only; a previously
// published handle keeps serving.
func (r *Registry) Load(domainID, artifactPath string) (*Handle, error) {
	s, err := r.schemas.Get(domainID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	h, err := r.build(s, artifactPath)
	if err != nil {
		loadErr := &domain.ModelLoadError{Domain: domainID, Path: artifactPath, Err: err}
		available := r.publish(domainID, nil, loadErr)
		r.metrics.ObserveModelLoad(domainID, false, available)
		r.logger.WithFields(logrus.Fields{
			"domain":        domainID,
			"artifact_path": artifactPath,
			"still_serving": available,
		}).WithError(err).Error("Model load failed")
		return nil, loadErr
	}

	r.publish(domainID, h, nil)
	r.metrics.ObserveModelLoad(domainID, true, true)
	r.logger.WithFields(logrus.Fields{
		"domain":        domainID,
		"artifact_path": artifactPath,
		"model_type":    h.Metadata.ModelType,
		"version":       h.Version(),
		"features":      len(h.FeatureOrder),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Model loaded")
	return h, nil
}

func (r *Registry) build(s *schema.DomainSchema, artifactPath string) (*Handle, error) {
	a, err := ReadArtifact(artifactPath)
	if err != nil {
		return nil, err
	}
	return NewHandle(s, artifactPath, a)
}

// publish swaps in a copy of the current snapshot with one domain changed.
// It reports whether the domain has a handle afterwards.
func (r *Registry) publish(domainID string, h *Handle, loadErr *domain.ModelLoadError) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	next := &snapshot{
		handles:  make(map[string]*Handle, len(old.handles)+1),
		failures: make(map[string]*domain.ModelLoadError, len(old.failures)+1),
	}
	for k, v := range old.handles {
		next.handles[k] = v
	}
	for k, v := range old.failures {
		next.failures[k] = v
	}

	if h != nil {
		next.handles[domainID] = h
		delete(next.failures, domainID)
	} else {
		next.failures[domainID] = loadErr
	}
	r.current.Store(next)

	_, ok := next.handles[domainID]
	return ok
}

// LoadAll loads every domain from root/<domain> concurrently.
// Per-domain failures are recorded and do not stop the others; only
// context cancellation is returned.
func (r *Registry) LoadAll(ctx context.Context, root string, domains []string, workers int) error {
	if len(domains) == 0 {
		domains = r.schemas.Domains()
	}

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, d := range domains {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// failure is recorded in the snapshot
			_, _ = r.Load(d, filepath.Join(root, d))
			return nil
		})
	}
	return g.Wait()
}

// Reload builds a new handle and atomically replaces the current one.
// Concurrent reloads of the same artifact share one load. An empty path
// reloads from the currently published artifact path.
func (r *Registry) Reload(ctx context.Context, domainID, artifactPath string) (*Handle, error) {
	if artifactPath == "" {
		h, err := r.Handle(domainID)
		if err != nil {
			var loadErr *domain.ModelLoadError
			if !errors.As(err, &loadErr) || loadErr.Path == "" {
				return nil, fmt.Errorf("no artifact path known for domain %s: %w", domainID, err)
			}
			artifactPath = loadErr.Path
		} else {
			artifactPath = h.ArtifactPath
		}
	}

	ch := r.inflight.DoChan(domainID+"\x00"+artifactPath, func() (interface{}, error) {
		return r.Load(domainID, artifactPath)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	}
}

// Handle returns the published handle for a domain. A domain whose load
// failed returns its *domain.ModelLoadError; a domain never loaded returns
// *domain.UnknownDomainError.
func (r *Registry) Handle(domainID string) (*Handle, error) {
	snap := r.current.Load()
	if h, ok := snap.handles[domainID]; ok {
		return h, nil
	}
	if loadErr, ok := snap.failures[domainID]; ok {
		return nil, loadErr
	}
	return nil, &domain.UnknownDomainError{Domain: domainID}
}

// Predict runs the domain's current model on vec
func (r *Registry) Predict(domainID string, vec *domain.FeatureVector) (*domain.PredictionResult, error) {
	h, err := r.Handle(domainID)
	if err != nil {
		return nil, err
	}
	return h.Predict(vec)
}

// Status reports availability for one domain
func (r *Registry) Status(domainID string) domain.DomainStatus {
	snap := r.current.Load()
	st := domain.DomainStatus{Domain: domainID}
	if s, err := r.schemas.Get(domainID); err == nil {
		st.DisplayName = s.DisplayName
	}
	if h, ok := snap.handles[domainID]; ok {
		loadedAt := h.LoadedAt
		meta := h.Metadata
		st.Available = true
		st.ArtifactPath = h.ArtifactPath
		st.LoadedAt = &loadedAt
		st.Metadata = &meta
	}
	if loadErr, ok := snap.failures[domainID]; ok {
		st.LastError = loadErr.Error()
		if st.ArtifactPath == "" {
			st.ArtifactPath = loadErr.Path
		}
	}
	return st
}

// Statuses reports availability for every registered domain
func (r *Registry) Statuses() []domain.DomainStatus {
	domains := r.schemas.Domains()
	out := make([]domain.DomainStatus, 0, len(domains))
	for _, d := range domains {
		out = append(out, r.Status(d))
	}
	return out
}
