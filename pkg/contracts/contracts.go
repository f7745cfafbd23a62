// Package contracts defines the service interfaces shared across psymarket.
//
// Drivers, secret sources and run stores are consumed through these
// interfaces so a deployment can swap a community implementation for its
// own without touching the orchestration code.
package contracts

import (
	"context"

	"github.com/agentoven/psymarket/pkg/models"
)

// ── Provider Drivers ────────────────────────────────────────

// ProviderDriver performs the network call for one kind of provider and
// normalises the upstream response.
//
// Implementations must not retry and must not fabricate content: upstream
// failures are returned as errors.
type ProviderDriver interface {
	// Kind returns the descriptor kind this driver serves (e.g. "openai").
	Kind() string

	// Call sends req to the provider described by desc. creds holds the
	// resolved values of desc.RequiredCredentials and any optional
	// credentials that were set.
	Call(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest, creds map[string]string) (*models.InvocationResult, error)
}

// ── Secrets ─────────────────────────────────────────────────

// SecretSource resolves named credentials at invocation time.
type SecretSource interface {
	// Lookup returns the secret value and whether it is set and non-empty.
	Lookup(name string) (string, bool)
}

// SecretMap is a static SecretSource, handy for tests.
type SecretMap map[string]string

// Lookup implements SecretSource.
func (m SecretMap) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok && v != ""
}

// ── Run Notifications ───────────────────────────────────────

// RunNotifier receives progress and terminal events of analysis runs.
type RunNotifier interface {
	Progress(ctx context.Context, event models.ProgressEvent)
	Completed(ctx context.Context, run *models.AnalysisRun)
	Failed(ctx context.Context, run *models.AnalysisRun)
}
