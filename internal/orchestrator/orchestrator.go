// Package orchestrator runs a service class request down its provider
// chain: the primary first, then each backup in rank order, one attempt
// each, until one answer passes per-call validation.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentoven/psymarket/internal/quality"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("psymarket/orchestrator")

// Registry resolves the provider chain for a class.
type Registry interface {
	Lookup(class models.ServiceClass) (models.ProviderDescriptor, []models.ProviderDescriptor, error)
	Classes() []models.ServiceClass
}

// Invoker performs one provider call.
type Invoker interface {
	Invoke(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest) (*models.InvocationResult, error)
	MissingCredentials(desc models.ProviderDescriptor) []string
}

// Attempt describes one provider attempt, successful or not.
type Attempt struct {
	Class    models.ServiceClass
	Provider string
	Role     models.ProviderRole
	Success  bool
	Reason   string
	Duration time.Duration
}

// AttemptObserver is told about every attempt as it finishes.
type AttemptObserver func(Attempt)

// Orchestrator executes requests with provider fallback.
type Orchestrator struct {
	registry  Registry
	invoker   Invoker
	observers []AttemptObserver
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver adds an attempt observer.
func WithObserver(obs AttemptObserver) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// New creates an Orchestrator.
func New(reg Registry, inv Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{registry: reg, invoker: inv}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecuteWithFallback returns the first validated result along the chain
// for class. A *providers.ConfigurationError from the lookup is returned
// as is; exhausting the chain yields *AllProvidersFailedError.
func (o *Orchestrator) ExecuteWithFallback(ctx context.Context, class models.ServiceClass, req models.InvocationRequest) (*models.InvocationResult, error) {
	primary, backups, err := o.registry.Lookup(class)
	if err != nil {
		return nil, err
	}
	req.Class = class

	ctx, span := tracer.Start(ctx, "orchestrator.execute")
	defer span.End()
	span.SetAttributes(attribute.String("service.class", string(class)))

	chain := append([]models.ProviderDescriptor{primary}, backups...)
	var failures []AttemptFailure

	for _, desc := range chain {
		if err := ctx.Err(); err != nil {
			failures = append(failures, AttemptFailure{Provider: desc.Name, Reason: "not attempted: " + err.Error(), Err: err})
			break
		}

		start := time.Now()
		result, failure := o.attempt(ctx, desc, req)
		o.notify(Attempt{
			Class:    class,
			Provider: desc.Name,
			Role:     desc.Role,
			Success:  failure == nil,
			Reason:   reasonOf(failure),
			Duration: time.Since(start),
		})

		if failure == nil {
			if desc.Role == models.RoleBackup {
				log.Info().
					Str("class", string(class)).
					Str("provider", desc.Name).
					Int("failed_before", len(failures)).
					Msg("🔄 Backup provider answered")
			}
			span.SetAttributes(attribute.String("provider.selected", desc.Name))
			return result, nil
		}

		log.Warn().
			Str("class", string(class)).
			Str("provider", desc.Name).
			Str("reason", failure.Reason).
			Msg("Provider attempt failed, trying next")
		failures = append(failures, *failure)
	}

	err = &AllProvidersFailedError{Class: class, Failures: failures}
	span.RecordError(err)
	log.Error().Str("class", string(class)).Int("attempts", len(failures)).Msg("💥 All providers failed")
	return nil, err
}

// attempt invokes desc once and validates the answer.
func (o *Orchestrator) attempt(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest) (*models.InvocationResult, *AttemptFailure) {
	result, err := o.invoker.Invoke(ctx, desc, req)
	if err != nil {
		return nil, &AttemptFailure{Provider: desc.Name, Reason: err.Error(), Err: err}
	}
	if ok, reason := quality.CheckResult(result, req.Class); !ok {
		return nil, &AttemptFailure{Provider: desc.Name, Reason: "rejected: " + reason}
	}
	return result, nil
}

func (o *Orchestrator) notify(a Attempt) {
	for _, obs := range o.observers {
		obs(a)
	}
}

func reasonOf(f *AttemptFailure) string {
	if f == nil {
		return ""
	}
	return f.Reason
}

// ── Errors ──────────────────────────────────────────────────

// AttemptFailure records why one provider did not produce a usable answer.
// Err is nil when the call succeeded but the content was rejected.
type AttemptFailure struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// AllProvidersFailedError means every provider of a class was tried
// without a usable answer.
type AllProvidersFailedError struct {
	Class    models.ServiceClass
	Failures []AttemptFailure
}

func (e *AllProvidersFailedError) Error() string {
	reasons := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		reasons[i] = f.Reason
		if !strings.HasPrefix(f.Reason, f.Provider) {
			reasons[i] = fmt.Sprintf("%s: %s", f.Provider, f.Reason)
		}
	}
	return fmt.Sprintf("all %s providers failed: %s", e.Class, strings.Join(reasons, "; "))
}

// Unwrap exposes the underlying call errors.
func (e *AllProvidersFailedError) Unwrap() []error {
	var errs []error
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
