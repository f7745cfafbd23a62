package orchestrator

import (
	"context"
	"time"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/rs/zerolog/log"
)

const probePrompt = "Responda apenas com a palavra: disponível."

// Status reports which providers can currently be attempted, judged by
// credential presence alone. It makes no network calls.
func (o *Orchestrator) Status() models.SystemStatus {
	status := models.SystemStatus{OverallHealth: models.HealthHealthy, CheckedAt: time.Now().UTC()}

	for _, class := range o.registry.Classes() {
		primary, backups, err := o.registry.Lookup(class)
		if err != nil {
			continue
		}
		cs := models.ClassStatus{Class: class, Primary: o.providerStatus(primary)}
		if cs.Primary.Configured {
			cs.Available++
		}
		for _, b := range backups {
			ps := o.providerStatus(b)
			if ps.Configured {
				cs.Available++
			}
			cs.Backups = append(cs.Backups, ps)
		}

		switch {
		case cs.Available == 0:
			status.OverallHealth = models.HealthCritical
		case !cs.Primary.Configured && status.OverallHealth == models.HealthHealthy:
			status.OverallHealth = models.HealthDegraded
		}
		status.Classes = append(status.Classes, cs)
	}
	return status
}

func (o *Orchestrator) providerStatus(desc models.ProviderDescriptor) models.ProviderStatus {
	missing := o.invoker.MissingCredentials(desc)
	return models.ProviderStatus{
		Name:       desc.Name,
		Kind:       desc.Kind,
		Role:       desc.Role,
		IsFree:     desc.IsFree,
		Configured: len(missing) == 0,
		Missing:    missing,
	}
}

// TestAll sends a tiny live request to every class and reports the first
// provider in each chain that answers. Answers are not content-validated.
func (o *Orchestrator) TestAll(ctx context.Context) []models.ProbeResult {
	var results []models.ProbeResult
	for _, class := range o.registry.Classes() {
		results = append(results, o.probe(ctx, class))
	}
	return results
}

func (o *Orchestrator) probe(ctx context.Context, class models.ServiceClass) models.ProbeResult {
	res := models.ProbeResult{Class: class}
	primary, backups, err := o.registry.Lookup(class)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	req := models.InvocationRequest{
		Class:   class,
		Prompt:  probePrompt,
		Options: models.InvocationOptions{MaxTokens: 16, NumResults: 1},
	}
	if class == models.ServiceSearch {
		req.Prompt = "análise de mercado"
	}

	start := time.Now()
	var lastErr error
	for _, desc := range append([]models.ProviderDescriptor{primary}, backups...) {
		if _, err := o.invoker.Invoke(ctx, desc, req); err != nil {
			lastErr = err
			continue
		}
		res.Success = true
		res.Provider = desc.Name
		break
	}
	res.LatencyMs = time.Since(start).Milliseconds()
	if !res.Success && lastErr != nil {
		res.Error = lastErr.Error()
	}
	log.Info().
		Str("class", string(class)).
		Bool("success", res.Success).
		Str("provider", res.Provider).
		Msg("🔍 Provider probe finished")
	return res
}
