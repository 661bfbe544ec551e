package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ahrdadan/selenified/internal/app"
	"github.com/ahrdadan/selenified/internal/config"
	"github.com/ahrdadan/selenified/internal/report"
	"github.com/ahrdadan/selenified/internal/scenario"
	"github.com/ahrdadan/selenified/internal/security"
)

// ScenarioProcessor executes queued runs in a browser. Each run writes its
// report to a directory named after the run under the configured OutputDir.
type ScenarioProcessor struct {
	cfg    *config.Config
	client *http.Client
}

// NewScenarioProcessor creates a processor for cfg
func NewScenarioProcessor(cfg *config.Config) *ScenarioProcessor {
	return &ScenarioProcessor{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

// Process implements RunProcessor
func (p *ScenarioProcessor) Process(ctx context.Context, run *Run, progress ProgressCallback, sink report.Sink) (*report.Summary, error) {
	sc := run.Request.Scenario
	sc.RunID = run.ID
	if run.Request.Browser != "" {
		sc.Browser = run.Request.Browser
	}

	cfg := *p.cfg
	cfg.OutputDir = filepath.Join(p.cfg.OutputDir, run.ID)

	summary, err := scenario.Execute(ctx, &cfg, &sc, func(done, total int, step scenario.Step) {
		if progress != nil {
			progress(done, total, fmt.Sprintf("[Step %d/%d] %s", done, total, step))
		}
	}, app.WithSink(sink))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run timed out after %v: %w", run.TimeoutDuration(), ctx.Err())
		}
		return nil, fmt.Errorf("run failed: %w", err)
	}

	if n := run.Request.Notify; n != nil && n.WebhookURL != "" {
		go p.sendWebhook(run.ID, *n, summary)
	}
	return &summary, nil
}

// sendWebhook posts the summary of a finished run
func (p *ScenarioProcessor) sendWebhook(runID string, notify NotifyConfig, summary report.Summary) {
	data, err := json.Marshal(map[string]any{
		"run_id":      runID,
		"status":      summary.Outcome,
		"summary":     summary,
		"status_url":  "/selenified/runs/" + runID,
		"finished_at": time.Now().Unix(),
	})
	if err != nil {
		log.Printf("Warning: failed to marshal webhook payload: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, notify.WebhookURL, bytes.NewReader(data))
	if err != nil {
		log.Printf("Warning: failed to create webhook request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Selenified-Event", "run.finished")
	if notify.Secret != "" {
		req.Header.Set("X-Selenified-Signature", "sha256="+security.SignWebhook(data, notify.Secret))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		log.Printf("Warning: failed to send webhook: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		log.Printf("Warning: webhook returned status %d", resp.StatusCode)
	}
}
