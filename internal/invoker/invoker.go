// Package invoker performs exactly one call to one provider.
//
// It resolves the provider's credentials, applies the per-provider rate
// limit and the per-call timeout, dispatches to the driver registered for
// the descriptor's kind and normalises failures into typed errors. It never
// retries: choosing what to try next is the orchestrator's job.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentoven/psymarket/pkg/contracts"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("psymarket/invoker")

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 120 * time.Second

// Invoker dispatches provider calls to registered drivers.
type Invoker struct {
	secrets contracts.SecretSource
	timeout time.Duration

	drvMu   sync.RWMutex
	drivers map[string]contracts.ProviderDriver

	limit    rate.Limit
	burst    int
	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithRateLimit caps calls per provider. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(i *Invoker) {
		if rps <= 0 {
			i.limit = rate.Inf
			return
		}
		if burst < 1 {
			burst = 1
		}
		i.limit = rate.Limit(rps)
		i.burst = burst
	}
}

// WithDrivers registers drivers at construction time.
func WithDrivers(drivers ...contracts.ProviderDriver) Option {
	return func(i *Invoker) {
		for _, d := range drivers {
			i.drivers[d.Kind()] = d
		}
	}
}

// New creates an Invoker that reads credentials from secrets.
func New(secrets contracts.SecretSource, opts ...Option) *Invoker {
	i := &Invoker{
		secrets:  secrets,
		timeout:  DefaultTimeout,
		drivers:  make(map[string]contracts.ProviderDriver),
		limit:    rate.Inf,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// RegisterDriver adds or replaces the driver for its kind.
func (i *Invoker) RegisterDriver(d contracts.ProviderDriver) {
	i.drvMu.Lock()
	defer i.drvMu.Unlock()
	i.drivers[d.Kind()] = d
	log.Debug().Str("kind", d.Kind()).Msg("Registered provider driver")
}

// Kinds lists the registered driver kinds.
func (i *Invoker) Kinds() []string {
	i.drvMu.RLock()
	defer i.drvMu.RUnlock()
	out := make([]string, 0, len(i.drivers))
	for k := range i.drivers {
		out = append(out, k)
	}
	return out
}

// MissingCredentials returns the required credentials of desc that are not
// currently set.
func (i *Invoker) MissingCredentials(desc models.ProviderDescriptor) []string {
	var missing []string
	for _, name := range desc.RequiredCredentials {
		if _, ok := i.secrets.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Invoke performs one call to the provider described by desc.
//
// Errors are one of *MissingCredentialError, *ProviderCallError or
// *EmptyResponseError, or the context error when ctx is done before the
// call starts.
func (i *Invoker) Invoke(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest) (*models.InvocationResult, error) {
	creds := make(map[string]string, len(desc.RequiredCredentials)+len(desc.OptionalCredentials))
	for _, name := range desc.RequiredCredentials {
		v, ok := i.secrets.Lookup(name)
		if !ok {
			return nil, &MissingCredentialError{Provider: desc.Name, Credential: name}
		}
		creds[name] = v
	}
	for _, name := range desc.OptionalCredentials {
		if v, ok := i.secrets.Lookup(name); ok {
			creds[name] = v
		}
	}

	i.drvMu.RLock()
	driver, ok := i.drivers[desc.Kind]
	i.drvMu.RUnlock()
	if !ok {
		return nil, &ProviderCallError{Provider: desc.Name, Err: fmt.Errorf("no driver registered for kind %q", desc.Kind)}
	}

	if err := i.limiter(desc.Name).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderCallError{Provider: desc.Name, Err: fmt.Errorf("rate limit: %w", err)}
	}

	ctx, span := tracer.Start(ctx, "provider.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.name", desc.Name),
		attribute.String("provider.kind", desc.Kind),
		attribute.String("service.class", string(req.Class)),
	)

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	result, err := driver.Call(callCtx, desc, req, creds)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", i.timeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Debug().Str("provider", desc.Name).Dur("elapsed", elapsed).Err(err).Msg("Provider call failed")
		return nil, &ProviderCallError{Provider: desc.Name, Err: err}
	}

	if result == nil || (strings.TrimSpace(result.Content) == "" && len(result.Results) == 0) {
		span.SetStatus(codes.Error, "empty response")
		return nil, &EmptyResponseError{Provider: desc.Name}
	}
	if result.Provider == "" {
		result.Provider = desc.Name
	}
	if result.Model == "" {
		result.Model = desc.Model
	}

	span.SetAttributes(
		attribute.Int64("provider.tokens_used", result.TokensUsed),
		attribute.Int("provider.content_length", len(result.Content)),
	)
	log.Debug().
		Str("provider", desc.Name).
		Dur("elapsed", elapsed).
		Int64("tokens", result.TokensUsed).
		Msg("Provider call succeeded")

	return result, nil
}

func (i *Invoker) limiter(provider string) *rate.Limiter {
	i.limMu.Lock()
	defer i.limMu.Unlock()
	l, ok := i.limiters[provider]
	if !ok {
		l = rate.NewLimiter(i.limit, i.burst)
		i.limiters[provider] = l
	}
	return l
}
