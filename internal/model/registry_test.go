package model

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/metrics"
	"github.com/medirisk-server/internal/schema"
)

func newTestRegistry(t *testing.T) (*Registry, *schema.Registry) {
	t.Helper()
	schemas, err := schema.NewRegistry()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRegistry(schemas, logger, metrics.New(prometheus.NewRegistry())), schemas
}

// writeCardioArtifact writes the demo cardiovascular artifact with a custom
// intercept so tests can tell two versions apart by their output.
func writeCardioArtifact(t *testing.T, schemas *schema.Registry, dir string, intercept float64, version string) *Artifact {
	t.Helper()
	s, err := schemas.Get(domain.DomainCardiovascular)
	require.NoError(t, err)
	a, err := DemoArtifact(s)
	require.NoError(t, err)
	a.Classifier.Intercepts = []float64{intercept}
	a.Metadata.Version = version
	require.NoError(t, WriteArtifact(dir, a))
	return a
}

func zeroVector(h *Handle) *domain.FeatureVector {
	return &domain.FeatureVector{
		Domain:       h.Domain,
		FeatureOrder: h.FeatureOrder,
		Values:       make([]float64, len(h.FeatureOrder)),
	}
}

func TestRegistry_LoadAllDemo(t *testing.T) {
	reg, schemas := newTestRegistry(t)
	root := t.TempDir()
	require.NoError(t, WriteDemoArtifacts(root, schemas))

	require.NoError(t, reg.LoadAll(context.Background(), root, nil, 2))

	expected := map[string]int{
		domain.DomainCardiovascular: 14,
		domain.DomainBreastCancer:   30,
		domain.DomainFetalHealth:    21,
	}
	for d, n := range expected {
		h, err := reg.Handle(d)
		require.NoError(t, err, d)
		assert.Len(t, h.FeatureOrder, n, d)
		assert.Equal(t, "demo-1", h.Version())

		res, err := reg.Predict(d, zeroVector(h))
		require.NoError(t, err)
		var sum float64
		for _, p := range res.Probabilities {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		assert.Equal(t, res.TargetLabels[res.ClassIndex], res.Label)
		assert.Equal(t, res.Probabilities[res.ClassIndex], res.Confidence)
	}

	for _, st := range reg.Statuses() {
		assert.True(t, st.Available, st.Domain)
		assert.Empty(t, st.LastError)
		assert.NotNil(t, st.LoadedAt)
		assert.NotEmpty(t, st.DisplayName)
	}
}

func TestRegistry_CorruptArtifactIsolated(t *testing.T) {
	reg, schemas := newTestRegistry(t)
	root := t.TempDir()
	require.NoError(t, WriteDemoArtifacts(root, schemas))
	require.NoError(t, os.WriteFile(filepath.Join(root, domain.DomainFetalHealth, ClassifierFile), []byte("{not json"), 0o644))

	require.NoError(t, reg.LoadAll(context.Background(), root, nil, 0))

	_, err := reg.Handle(domain.DomainFetalHealth)
	var loadErr *domain.ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, domain.DomainFetalHealth, loadErr.Domain)
	assert.Contains(t, loadErr.Error(), ClassifierFile)

	st := reg.Status(domain.DomainFetalHealth)
	assert.False(t, st.Available)
	assert.NotEmpty(t, st.LastError)

	_, err = reg.Handle(domain.DomainCardiovascular)
	assert.NoError(t, err)
	_, err = reg.Handle(domain.DomainBreastCancer)
	assert.NoError(t, err)
}

func TestRegistry_MissingArtifact(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Load(domain.DomainCardiovascular, filepath.Join(t.TempDir(), "absent"))
	var loadErr *domain.ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRegistry_UnknownDomain(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Load("dermatology", t.TempDir())
	var unknown *domain.UnknownDomainError
	assert.ErrorAs(t, err, &unknown)

	_, err = reg.Handle("dermatology")
	assert.ErrorAs(t, err, &unknown)
}

func TestRegistry_ArtifactRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Artifact)
	}{
		{"feature count mismatch", func(a *Artifact) { a.Metadata.FeatureCount++ }},
		{"unknown feature", func(a *Artifact) { a.Features[0] = "shoe_size" }},
		{"duplicate feature", func(a *Artifact) { a.Features[1] = a.Features[0] }},
		{"target classes differ", func(a *Artifact) { a.Metadata.TargetClasses = []string{"No", "Yes"} }},
		{"scaler too short", func(a *Artifact) { a.Scaler.Mean = a.Scaler.Mean[1:] }},
		{"coefficient width", func(a *Artifact) { a.Classifier.Coefficients[0] = a.Classifier.Coefficients[0][1:] }},
		{"class count", func(a *Artifact) {
			a.Classifier.Coefficients = append(a.Classifier.Coefficients, a.Classifier.Coefficients[0], a.Classifier.Coefficients[0])
			a.Classifier.Intercepts = []float64{0, 0, 0}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, schemas := newTestRegistry(t)
			s, err := schemas.Get(domain.DomainCardiovascular)
			require.NoError(t, err)
			a, err := DemoArtifact(s)
			require.NoError(t, err)
			tt.mutate(a)

			dir := t.TempDir()
			require.NoError(t, WriteArtifact(dir, a))

			_, err = reg.Load(domain.DomainCardiovascular, dir)
			var loadErr *domain.ModelLoadError
			assert.ErrorAs(t, err, &loadErr)
		})
	}
}

func TestRegistry_ShapeMismatch(t *testing.T) {
	reg, schemas := newTestRegistry(t)
	dir := t.TempDir()
	writeCardioArtifact(t, schemas, dir, -2, "v1")
	h, err := reg.Load(domain.DomainCardiovascular, dir)
	require.NoError(t, err)

	_, err = reg.Predict(domain.DomainCardiovascular, &domain.FeatureVector{Values: make([]float64, len(h.FeatureOrder)-1)})
	var shapeErr *domain.ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, len(h.FeatureOrder), shapeErr.Expected)
	assert.Equal(t, len(h.FeatureOrder)-1, shapeErr.Got)
}

func TestRegistry_ReloadSwapsHandle(t *testing.T) {
	reg, schemas := newTestRegistry(t)
	dirA, dirB := t.TempDir(), t.TempDir()
	writeCardioArtifact(t, schemas, dirA, -2, "v1")
	writeCardioArtifact(t, schemas, dirB, 2, "v2")

	h, err := reg.Load(domain.DomainCardiovascular, dirA)
	require.NoError(t, err)
	vec := zeroVector(h)

	res, err := reg.Predict(domain.DomainCardiovascular, vec)
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(-2), res.Probabilities[1], 1e-12)
	assert.Equal(t, "v1", res.ModelVersion)

	_, err = reg.Reload(context.Background(), domain.DomainCardiovascular, dirB)
	require.NoError(t, err)

	res, err = reg.Predict(domain.DomainCardiovascular, vec)
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(2), res.Probabilities[1], 1e-12)
	assert.Equal(t, "v2", res.ModelVersion)

	// empty path reloads the published artifact
	h2, err := reg.Reload(context.Background(), domain.DomainCardiovascular, "")
	require.NoError(t, err)
	assert.Equal(t, dirB, h2.ArtifactPath)
}

func TestRegistry_FailedReloadKeepsServing(t *testing.T) {
	reg, schemas := newTestRegistry(t)
	dir := t.TempDir()
	writeCardioArtifact(t, schemas, dir, -2, "v1")
	h, err := reg.Load(domain.DomainCardiovascular, dir)
	require.NoError(t, err)

	_, err = reg.Reload(context.Background(), domain.DomainCardiovascular, filepath.Join(t.TempDir(), "missing"))
	var loadErr *domain.ModelLoadError
	require.ErrorAs(t, err, &loadErr)

	res, err := reg.Predict(domain.DomainCardiovascular, zeroVector(h))
	require.NoError(t, err)
	assert.Equal(t, "v1", res.ModelVersion)

	st := reg.Status(domain.DomainCardiovascular)
	assert.True(t, st.Available)
	assert.NotEmpty(t, st.LastError)
	assert.Equal(t, dir, st.ArtifactPath)
}

func TestRegistry_ReloadWithNewFeatureOrder(t *testing.T) {
	reg, schemas := newTestRegistry(t)
	dirA, dirB := t.TempDir(), t.TempDir()
	a := writeCardioArtifact(t, schemas, dirA, -2, "v1")

	reordered := *a
	reordered.Features = slices.Clone(a.Features)
	slices.Reverse(reordered.Features)
	reordered.Scaler = Scaler{Mean: slices.Clone(a.Scaler.Mean), Scale: slices.Clone(a.Scaler.Scale)}
	slices.Reverse(reordered.Scaler.Mean)
	slices.Reverse(reordered.Scaler.Scale)
	row := slices.Clone(a.Classifier.Coefficients[0])
	slices.Reverse(row)
	reordered.Classifier = ClassifierSpec{Type: TypeLogisticRegression, Coefficients: [][]float64{row}, Intercepts: []float64{-2}}
	require.NoError(t, WriteArtifact(dirB, &reordered))

	h, err := reg.Load(domain.DomainCardiovascular, dirA)
	require.NoError(t, err)
	stale := zeroVector(h)

	_, err = reg.Reload(context.Background(), domain.DomainCardiovascular, dirB)
	require.NoError(t, err)

	_, err = reg.Predict(domain.DomainCardiovascular, stale)
	var shapeErr *domain.ShapeMismatchError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestRegistry_LoadAllCancelled(t *testing.T) {
	reg, _ := newTestRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := reg.LoadAll(ctx, t.TempDir(), []string{domain.DomainCardiovascular}, 1)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = reg.Handle(domain.DomainCardiovascular)
	var unknown *domain.UnknownDomainError
	assert.ErrorAs(t, err, &unknown)
}

// Every prediction made while reloads are in flight must come entirely from
// one version or the other.
func TestRegistry_ConcurrentPredictDuringReload(t *testing.T) {
	reg, schemas := newTestRegistry(t)
	dirA, dirB := t.TempDir(), t.TempDir()
	writeCardioArtifact(t, schemas, dirA, -2, "v1")
	writeCardioArtifact(t, schemas, dirB, 2, "v2")

	h, err := reg.Load(domain.DomainCardiovascular, dirA)
	require.NoError(t, err)
	vec := zeroVector(h)

	expected := map[string]float64{"v1": sigmoid(-2), "v2": sigmoid(2)}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 64)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := reg.Predict(domain.DomainCardiovascular, vec)
				if err != nil {
					errs <- err.Error()
					return
				}
				want, ok := expected[res.ModelVersion]
				if !ok || math.Abs(res.Probabilities[1]-want) > 1e-12 {
					errs <- "mixed prediction from " + res.ModelVersion
					return
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		dir := dirA
		if i%2 == 0 {
			dir = dirB
		}
		_, err := reg.Reload(context.Background(), domain.DomainCardiovascular, dir)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}
