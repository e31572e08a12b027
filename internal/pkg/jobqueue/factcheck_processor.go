package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/FactFox/app/repository"
	"github.com/ManuelReschke/FactFox/internal/pkg/analyzer"
	"github.com/ManuelReschke/FactFox/internal/pkg/fetcher"
	counter "github.com/ManuelReschke/FactFox/internal/pkg/metrics/counter"
)

// FactCheckProcessor runs the background half of the fact-check pipeline:
// fetch the submitted URL's content, analyze it, and write exactly one
// terminal state to the request row. Every per-request failure is caught
// here and recorded as the failed state; nothing propagates back to the
// queue, so a fact-check is never silently retried.
type FactCheckProcessor struct {
	repos    *repository.Repositories
	fetcher  *fetcher.Client
	analyzer *analyzer.Client
}

// NewFactCheckProcessor creates a processor with explicit dependencies
func NewFactCheckProcessor(repos *repository.Repositories, f *fetcher.Client, a *analyzer.Client) *FactCheckProcessor {
	return &FactCheckProcessor{
		repos:    repos,
		fetcher:  f,
		analyzer: a,
	}
}

// Process drives one request from pending to a terminal state. The returned
// error is reserved for infrastructure faults (store unreachable); analysis
// and fetch failures terminate the request instead.
func (p *FactCheckProcessor) Process(ctx context.Context, payload *FactCheckJobPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[FactCheck] Panic while processing %s: %v", payload.RequestUUID, r)
			p.markFailed(payload.RequestUUID, fmt.Sprintf("internal error: %v", r))
			err = nil
		}
	}()

	request, err := p.repos.FactCheck.GetByUUID(payload.RequestUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[FactCheck] Request %s not found, dropping job", payload.RequestUUID)
			return nil
		}
		return fmt.Errorf("failed to load request %s: %w", payload.RequestUUID, err)
	}

	// Idempotence guard: the queue delivers at least once, terminal rows
	// must not be processed again.
	if request.IsTerminal() {
		log.Infof("[FactCheck] Request %s already %s, skipping", request.UUID, request.Status)
		return nil
	}

	content, err := p.fetcher.Fetch(ctx, request.URL)
	if err != nil {
		log.Errorf("[FactCheck] Content fetch for %s failed: %v", request.UUID, err)
		p.markFailed(request.UUID, err.Error())
		return nil
	}

	analysis, err := p.analyzer.Analyze(ctx, content.Markdown, content.ImageURLs)
	if err != nil {
		log.Errorf("[FactCheck] Analysis for %s failed: %v", request.UUID, err)
		p.markFailed(request.UUID, err.Error())
		return nil
	}

	score := analysis.Score
	updated, err := p.repos.FactCheck.MarkCompleted(request.UUID, analysis.Narrative, &score)
	if err != nil {
		return fmt.Errorf("failed to store result for %s: %w", request.UUID, err)
	}
	if !updated {
		log.Warnf("[FactCheck] Request %s reached a terminal state concurrently, result dropped", request.UUID)
		return nil
	}

	counter.AddCompleted()
	log.Infof("[FactCheck] Request %s completed (score=%d)", request.UUID, score)
	return nil
}

// markFailed records the terminal failed state, tolerating rows that are
// already terminal.
func (p *FactCheckProcessor) markFailed(uuid string, message string) {
	updated, err := p.repos.FactCheck.MarkFailed(uuid, message)
	if err != nil {
		log.Errorf("[FactCheck] Failed to record failure for %s: %v", uuid, err)
		return
	}
	if updated {
		counter.AddFailed()
	}
}
