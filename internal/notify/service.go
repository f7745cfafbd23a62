// Package notify delivers analysis run events to an HTTP webhook.
//
// Every event is posted as JSON, optionally signed with HMAC-SHA256, and
// retried up to three times. Deliveries run in the background so a slow
// receiver never holds up a pipeline; Close waits for the ones in flight.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/rs/zerolog/log"
)

// ── Event types ─────────────────────────────────────────────

// EventType describes what happened.
type EventType string

const (
	EventProgress  EventType = "analysis.progress"
	EventCompleted EventType = "analysis.completed"
	EventFailed    EventType = "analysis.failed"
)

// Event is the JSON body posted to the webhook.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ── Service ──────────────────────────────────────────────────

// Service implements contracts.RunNotifier.
type Service struct {
	url        string
	secret     string
	client     *http.Client
	attempts   int
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithRetryDelay sets the base delay between attempts. Attempt n waits
// n times the delay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) { s.retryDelay = d }
}

// NewService creates a notifier posting to url. An empty url disables
// delivery; events are still logged.
func NewService(url, secret string, opts ...Option) *Service {
	s := &Service{
		url:        url,
		secret:     secret,
		client:     &http.Client{Timeout: 15 * time.Second},
		attempts:   3,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if url == "" {
		log.Info().Msg("🔕 Webhook notifications disabled")
	}
	return s
}

// Progress reports a pipeline checkpoint.
func (s *Service) Progress(ctx context.Context, ev models.ProgressEvent) {
	log.Debug().
		Str("run_id", ev.RunID).
		Str("step", ev.Step).
		Int("percent", ev.Percent).
		Msg(ev.Message)
	s.dispatch(Event{
		Type:   EventProgress,
		RunID:  ev.RunID,
		Status: string(models.AnalysisProcessing),
		Payload: map[string]any{
			"step":    ev.Step,
			"percent": ev.Percent,
			"message": ev.Message,
		},
		Timestamp: ev.Timestamp,
	})
}

// Completed reports a finished run.
func (s *Service) Completed(_ context.Context, run *models.AnalysisRun) {
	s.dispatch(Event{
		Type:   EventCompleted,
		RunID:  run.ID,
		Status: string(run.Status),
		Payload: map[string]any{
			"product":              run.Input.Product.Name,
			"quality_score":        run.QualityScore,
			"quality_iterations":   run.QualityIterations,
			"execution_time":       run.ExecutionTimeSeconds,
			"services_used":        run.ServicesUsed,
			"backup_services_used": run.BackupServicesUsed,
			"warnings":             run.Warnings,
		},
		Timestamp: time.Now().UTC(),
	})
}

// Failed reports a failed or canceled run.
func (s *Service) Failed(_ context.Context, run *models.AnalysisRun) {
	failure := run.Failure()
	s.dispatch(Event{
		Type:   EventFailed,
		RunID:  run.ID,
		Status: string(run.Status),
		Payload: map[string]any{
			"product":              run.Input.Product.Name,
			"error":                failure.Error,
			"errors":               failure.Errors,
			"failed_phase":         failure.FailedPhase,
			"fallback_suggestions": failure.FallbackSuggestions,
		},
		Timestamp: time.Now().UTC(),
	})
}

// Close waits for pending deliveries.
func (s *Service) Close() {
	s.wg.Wait()
}

func (s *Service) dispatch(ev Event) {
	if s.url == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.Send(ctx, ev); err != nil {
			log.Warn().Err(err).Str("run_id", ev.RunID).Str("event", string(ev.Type)).Msg("Webhook notification failed")
			return
		}
		log.Debug().Str("run_id", ev.RunID).Str("event", string(ev.Type)).Msg("Webhook notification dispatched")
	}()
}

// Send posts ev synchronously with retries.
func (s *Service) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var signature string
	if s.secret != "" {
		mac := hmac.New(sha256.New, []byte(s.secret))
		mac.Write(body)
		signature = "sha256=" + hex.EncodeToString(mac.Sum(nil))
	}

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * s.retryDelay):
			case <-ctx.Done():
				return fmt.Errorf("webhook canceled after %d attempts: %w", attempt, ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Psymarket-Webhook/1.0")
		req.Header.Set("X-Psymarket-Event", string(ev.Type))
		if signature != "" {
			req.Header.Set("X-Psymarket-Signature", signature)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, s.url)
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", s.attempts, lastErr)
}
