package server

import (
	"context"

	"github.com/agentoven/psymarket/internal/config"
)

// SetTelemetryInit replaces the tracer setup for the duration of a test.
func SetTelemetryInit(fn func(context.Context, config.TelemetryConfig) (func(context.Context) error, error)) (restore func()) {
	prev := initTelemetry
	initTelemetry = fn
	return func() { initTelemetry = prev }
}
