package enhancement

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/metrics"
	"github.com/medirisk-server/pkg/external"
)

// Trace states recorded in metadata.trace
const (
	StateInit        = "INIT"
	StatePromptBuilt = "PROMPT_BUILT"
	StateCalling     = "CALLING"
	StateRetry       = "RETRY"
	StateSuccess     = "SUCCESS"
	StateFallback    = "FALLBACK"
	StateCacheHit    = "CACHE_HIT"
)

// Attempt results for metrics
const (
	attemptSuccess   = "success"
	attemptTransient = "transient"
	attemptFatal     = "fatal"
	attemptRejected  = "rejected"
)

// Gateway produces narrative reports through a text provider. It retries
// transient failures with exponential backoff and otherwise falls back to
// a deterministic report, so callers always receive a successful result.
type Gateway struct {
	provider domain.TextProvider
	config   domain.EnhancementConfig
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	cache    *ReportCache
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewGateway creates a gateway. A nil provider or a disabled config makes
// every request fall back; cache may be nil.
func NewGateway(provider domain.TextProvider, config domain.EnhancementConfig, cache *ReportCache, m *metrics.Metrics, logger *logrus.Logger) *Gateway {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if config.MaxBackoff < config.BaseBackoff {
		config.MaxBackoff = config.BaseBackoff
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.RateBurst
	if burst < 1 {
		burst = 1
	}

	name := "enhancement"
	if provider != nil {
		name = provider.Name()
	}

	return &Gateway{
		provider: provider,
		config:   config,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  external.NewCircuitBreaker(name, config.Breaker, logger),
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

// Enhance implements domain.ReportEnhancer
func (g *Gateway) Enhance(ctx context.Context, req *domain.EnhancementRequest) *domain.EnhancementResult {
	start := time.Now()
	run := &enhancement{
		gateway: g,
		req:     req,
		start:   start,
		meta:    domain.EnhancementMetadata{Trace: []string{StateInit}},
	}
	if req != nil {
		run.meta.Domain = req.Domain
	}

	res := run.execute(ctx)

	outcome := res.Metadata.Provider
	switch {
	case res.Metadata.CacheHit:
		outcome = "cache_hit"
	case res.Metadata.FallbackUsed:
		outcome = "fallback_" + res.Metadata.FallbackReason
	}
	g.metrics.ObserveEnhancement(res.Metadata.Domain, outcome, start)

	return res
}

// enhancement holds the state of one Enhance call
type enhancement struct {
	gateway *Gateway
	req     *domain.EnhancementRequest
	start   time.Time
	meta    domain.EnhancementMetadata
}

func (e *enhancement) execute(ctx context.Context) *domain.EnhancementResult {
	g := e.gateway

	if e.req == nil || e.req.Assessment == nil {
		return e.fallback(ReasonInvalidRequest, errors.New("risk assessment is required"))
	}
	if g.provider == nil || !g.config.Enabled {
		return e.fallback(ReasonNotConfigured, errors.New("report enhancement provider is not configured"))
	}
	e.meta.Model = g.provider.Model()

	var cacheKey string
	if g.cache != nil {
		key, err := ReportKey(e.req, g.provider.Model())
		if err == nil {
			cacheKey = key
			if cached, ok := g.cache.Get(ctx, key); ok {
				return e.cacheHit(cached)
			}
		}
	}

	prompt, err := BuildPrompt(e.req)
	if err != nil {
		return e.fallback(ReasonInvalidRequest, err)
	}
	e.trace(StatePromptBuilt)

	text, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return e.fallback(e.classify(ctx, err), err)
	}

	e.trace(StateSuccess)
	res := e.result(text)
	res.Metadata.Provider = g.provider.Name()
	if cacheKey != "" {
		g.cache.Put(ctx, cacheKey, res)
	}
	return res
}

// callWithRetry makes up to MaxRetries provider attempts. Only transient
// failures are retried; the wait before attempt n is base*2^(n-2) capped
// at MaxBackoff and is abandoned when ctx is done.
func (e *enhancement) callWithRetry(ctx context.Context, prompt string) (string, error) {
	g := e.gateway

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = g.config.BaseBackoff
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0
	schedule.MaxInterval = g.config.MaxBackoff
	schedule.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(g.config.MaxRetries-1)), ctx)

	var text string
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&rateLimitError{err: err})
		}

		e.meta.AttemptsMade++
		e.trace(StateCalling)

		out, err := e.attempt(ctx, prompt)
		switch {
		case err == nil:
			g.metrics.IncEnhancementAttempt(attemptSuccess)
			text = out
			return nil
		case external.IsBreakerRejection(err):
			g.metrics.IncEnhancementAttempt(attemptRejected)
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case domain.IsTransient(err):
			g.metrics.IncEnhancementAttempt(attemptTransient)
			return err
		default:
			g.metrics.IncEnhancementAttempt(attemptFatal)
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		e.trace(StateRetry)
		g.logger.WithFields(logrus.Fields{
			"domain":  e.meta.Domain,
			"attempt": e.meta.AttemptsMade,
			"wait":    wait.String(),
		}).WithError(err).Warn("Report provider call failed, retrying")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", err
	}
	return text, nil
}

// attempt runs one provider call through the breaker under the per-attempt timeout
func (e *enhancement) attempt(ctx context.Context, prompt string) (string, error) {
	g := e.gateway

	attemptCtx, cancel := context.WithTimeout(ctx, g.config.AttemptTimeout)
	defer cancel()

	out, err := g.breaker.Execute(func() (interface{}, error) {
		text, err := g.provider.Generate(attemptCtx, prompt)
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !domain.IsTransient(err) {
			err = &domain.ProviderTransientError{Provider: g.provider.Name(), Err: err}
		}
		return text, err
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (e *enhancement) classify(ctx context.Context, err error) string {
	var limited *rateLimitError
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return ReasonCancelled
	case external.IsBreakerRejection(err):
		return ReasonCircuitOpen
	case errors.As(err, &limited):
		return ReasonRateLimited
	case domain.IsTransient(err):
		return ReasonProviderUnavailable
	default:
		return ReasonProviderError
	}
}

func (e *enhancement) fallback(reason string, cause error) *domain.EnhancementResult {
	e.trace(StateFallback)
	e.meta.FallbackUsed = true
	e.meta.FallbackReason = reason
	if cause != nil {
		e.meta.ErrorDetails = cause.Error()
	}

	e.gateway.logger.WithFields(logrus.Fields{
		"domain":   e.meta.Domain,
		"reason":   reason,
		"attempts": e.meta.AttemptsMade,
	}).WithError(cause).Warn("Using fallback report")

	res := e.result(FallbackReport(e.req))
	res.Metadata.Provider = domain.ProviderFallback
	return res
}

func (e *enhancement) cacheHit(cached *domain.EnhancementResult) *domain.EnhancementResult {
	e.trace(StateCacheHit)
	meta := e.finish()
	meta.Provider = cached.Metadata.Provider
	meta.Model = cached.Metadata.Model
	meta.CacheHit = true
	cached.Metadata = meta
	return cached
}

func (e *enhancement) result(text string) *domain.EnhancementResult {
	return &domain.EnhancementResult{
		Status:     domain.StatusSuccess,
		ReportText: text,
		Metadata:   e.finish(),
	}
}

func (e *enhancement) finish() domain.EnhancementMetadata {
	meta := e.meta
	meta.GeneratedAt = time.Now().UTC()
	meta.ProcessingTimeSeconds = time.Since(e.start).Seconds()
	meta.Trace = append([]string(nil), e.meta.Trace...)
	return meta
}

func (e *enhancement) trace(state string) {
	e.meta.Trace = append(e.meta.Trace, state)
}

type rateLimitError struct {
	err error
}

func (e *rateLimitError) Error() string { return "rate limiter: " + e.err.Error() }

func (e *rateLimitError) Unwrap() error { return e.err }
