// Package analyzer orchestrates the detection pipeline: record a sample,
// score the accumulated history, resolve the action tier, execute bans, and
// hand the outcome to the alert dispatcher and the audit ledger.
package analyzer

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/promoguard/fraud-engine/internal/action"
	"github.com/promoguard/fraud-engine/internal/alert"
	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/ledger"
	"github.com/promoguard/fraud-engine/internal/metrics"
	"github.com/promoguard/fraud-engine/internal/sample"
	"github.com/promoguard/fraud-engine/internal/scoring"
)

// task is one analysis request routed to a worker. All samples in a task
// share one (promoter, campaign) key and are scored as a single evaluation
// after the last append.
type task struct {
	ctx     context.Context
	samples []sample.EngagementSample
	reply   chan taskResult
}

type taskResult struct {
	analysis *scoring.BotAnalysis
	result   *scoring.ActionResult
	err      error
}

// Analyzer runs the detection pipeline over a fixed worker pool. Samples
// for the same (promoter, campaign) key always hash to the same worker, so
// evaluations of one key are serialized without a per-key lock.
type Analyzer struct {
	cfg        config.AnalyzerConfig
	logger     *slog.Logger
	store      *sample.Store
	engine     *scoring.Engine
	resolver   *action.Resolver
	executor   action.Executor
	dispatcher *alert.Dispatcher
	ledger     *ledger.Ledger
	metrics    *metrics.Collector

	queues       []chan *task
	appendQueue  chan *ledger.Entry
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	writerWG     sync.WaitGroup
}

// New creates an analyzer. Start must be called before Analyze.
func New(
	cfg config.AnalyzerConfig,
	store *sample.Store,
	engine *scoring.Engine,
	resolver *action.Resolver,
	executor action.Executor,
	dispatcher *alert.Dispatcher,
	led *ledger.Ledger,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Analyzer {
	queues := make([]chan *task, cfg.WorkerCount)
	for i := range queues {
		queues[i] = make(chan *task, cfg.QueueSize)
	}
	return &Analyzer{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		engine:       engine,
		resolver:     resolver,
		executor:     executor,
		dispatcher:   dispatcher,
		ledger:       led,
		metrics:      collector,
		queues:       queues,
		appendQueue:  make(chan *ledger.Entry, cfg.WorkerCount*cfg.QueueSize),
		shutdownChan: make(chan struct{}),
	}
}

// Start launches the analysis workers and the ledger writer.
func (a *Analyzer) Start(ctx context.Context) {
	a.logger.Info("Starting analyzer", "workers", a.cfg.WorkerCount)
	for i, queue := range a.queues {
		a.wg.Add(1)
		go a.worker(ctx, i, queue)
	}
	a.writerWG.Add(1)
	go a.ledgerWriter()
}

// Stop drains the task queues, then flushes the ledger writer.
func (a *Analyzer) Stop() {
	a.logger.Info("Stopping analyzer")
	close(a.shutdownChan)
	a.wg.Wait()
	close(a.appendQueue)
	a.writerWG.Wait()
	a.logger.Info("Analyzer stopped")
}

// Analyze validates and records one sample, then scores the key's full
// history. It blocks until the evaluation completes and returns the
// analysis together with the executed action.
func (a *Analyzer) Analyze(ctx context.Context, s sample.EngagementSample) (*scoring.BotAnalysis, *scoring.ActionResult, error) {
	if err := s.Validate(); err != nil {
		a.rejectSample(ctx, s, err)
		return nil, nil, err
	}
	return a.submit(ctx, s.Key(), []sample.EngagementSample{s})
}

// AnalyzeBatch records a batch of samples for one (promoter, campaign) key
// and scores the key's history once, after the last append. Malformed or
// mismatched samples are rejected individually and never abort the batch;
// the evaluation covers whatever survived validation.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, promoterID, campaignID string, samples []sample.EngagementSample) (*scoring.BotAnalysis, *scoring.ActionResult, error) {
	valid := make([]sample.EngagementSample, 0, len(samples))
	var firstErr error
	for _, s := range samples {
		err := s.Validate()
		if err == nil && (s.PromoterID != promoterID || s.CampaignID != campaignID) {
			err = fmt.Errorf("sample key %s does not match batch key %s:%s", s.Key(), promoterID, campaignID)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			a.rejectSample(ctx, s, err)
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		if firstErr != nil {
			return nil, nil, firstErr
		}
		return nil, nil, fmt.Errorf("empty sample batch for key %s:%s", promoterID, campaignID)
	}
	return a.submit(ctx, valid[0].Key(), valid)
}

// submit routes the samples to the key's worker and waits for the result.
func (a *Analyzer) submit(ctx context.Context, key sample.Key, samples []sample.EngagementSample) (*scoring.BotAnalysis, *scoring.ActionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	t := &task{ctx: ctx, samples: samples, reply: make(chan taskResult, 1)}
	queue := a.queues[a.route(key)]

	select {
	case queue <- t:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("analysis queue full for key %s: %w", key, ctx.Err())
	}

	select {
	case res := <-t.reply:
		return res.analysis, res.result, res.err
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("analysis timed out for key %s: %w", key, ctx.Err())
	}
}

// rejectSample records a validation failure without stopping the caller.
func (a *Analyzer) rejectSample(ctx context.Context, s sample.EngagementSample, err error) {
	a.metrics.ValidationFailure()
	if lerr := a.ledger.Append(ctx, &ledger.Entry{
		Type:       ledger.EntryValidation,
		PromoterID: s.PromoterID,
		CampaignID: s.CampaignID,
		Validation: &ledger.ValidationRecord{PostID: s.PostID, Error: err.Error()},
	}); lerr != nil {
		a.logger.Warn("Failed to record validation failure", "post_id", s.PostID, "error", lerr)
	}
}

// History returns past analyses for a (promoter, campaign) pair, most
// recent last.
func (a *Analyzer) History(ctx context.Context, promoterID, campaignID string) ([]*scoring.BotAnalysis, error) {
	entries, err := a.ledger.History(ctx, promoterID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis history: %w", err)
	}
	analyses := make([]*scoring.BotAnalysis, 0, len(entries))
	for _, e := range entries {
		if e.Analysis != nil {
			analyses = append(analyses, e.Analysis)
		}
	}
	return analyses, nil
}

// route picks the worker index for a key. fnv-1a keeps the mapping stable
// across calls so per-key evaluations never interleave.
func (a *Analyzer) route(key sample.Key) int {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return int(h.Sum32() % uint32(len(a.queues)))
}

func (a *Analyzer) worker(ctx context.Context, id int, queue chan *task) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.shutdownChan:
			// Answer whatever is already queued before exiting so
			// submitters never wait out their timeout on shutdown.
			for {
				select {
				case t := <-queue:
					t.reply <- a.evaluate(t.ctx, t.samples)
				default:
					return
				}
			}
		case t := <-queue:
			t.reply <- a.evaluate(t.ctx, t.samples)
		}
	}
}

// ledgerWriter persists analysis entries off the scoring path so a
// degraded store never delays the next same-key evaluation. Stop closes
// the queue after the workers finish, flushing remaining entries.
func (a *Analyzer) ledgerWriter() {
	defer a.writerWG.Done()
	for entry := range a.appendQueue {
		if err := a.ledger.Append(context.Background(), entry); err != nil {
			a.logger.Warn("Failed to record analysis in ledger", "entry_id", entry.ID, "error", err)
		}
	}
}

// evaluate runs the full pipeline for a same-key batch on its owning worker.
func (a *Analyzer) evaluate(ctx context.Context, samples []sample.EngagementSample) taskResult {
	start := time.Now()
	key := samples[0].Key()

	for _, s := range samples {
		a.store.Append(key, s)
	}
	history := a.store.Get(key)

	analysis := a.engine.Evaluate(key, history)
	analysis.Action = a.resolver.Resolve(analysis.BotScore)
	duration := time.Since(start)
	a.metrics.ObserveAnalysis(string(analysis.Platform), string(analysis.Action), analysis.BotScore, duration)

	result := &scoring.ActionResult{
		Timestamp:          time.Now().UTC(),
		SuspiciousPatterns: analysis.SuspiciousPatterns(),
		Analysis:           analysis,
		AnalysisID:         analysis.ID,
	}

	if analysis.Action == action.TierBan {
		if err := a.executor.ExecuteBan(ctx, analysis.PromoterID, analysis.CampaignID, analysis.BotScore, analysis.SuspiciousPatterns()); err != nil {
			result.Error = err.Error()
			a.logger.Error("Ban execution failed",
				"promoter_id", analysis.PromoterID,
				"campaign_id", analysis.CampaignID,
				"error", err)
			a.dispatcher.SystemAlert(ctx, analysis.PromoterID, analysis.CampaignID,
				alert.SeverityHigh,
				"Ban execution failed",
				fmt.Sprintf("Resolved ban for promoter %s on campaign %s could not be executed: %v",
					analysis.PromoterID, analysis.CampaignID, err))
		} else {
			result.Executed = true
		}
	} else if analysis.Action != action.TierNone {
		result.Executed = true
	}

	entry := &ledger.Entry{
		Type:         ledger.EntryAnalysis,
		PromoterID:   analysis.PromoterID,
		CampaignID:   analysis.CampaignID,
		Timestamp:    analysis.EvaluatedAt,
		Duration:     duration,
		Analysis:     analysis,
		ActionResult: result,
	}
	select {
	case a.appendQueue <- entry:
	default:
		// Writer backlog; take the write inline rather than drop audit data.
		if err := a.ledger.Append(ctx, entry); err != nil {
			a.logger.Warn("Failed to record analysis in ledger", "analysis_id", analysis.ID, "error", err)
		}
	}

	if _, err := a.dispatcher.Process(ctx, analysis, result); err != nil {
		a.logger.Error("Alert dispatch failed", "analysis_id", analysis.ID, "error", err)
	}

	a.logger.Debug("Analysis complete",
		"promoter_id", analysis.PromoterID,
		"campaign_id", analysis.CampaignID,
		"bot_score", analysis.BotScore,
		"action", analysis.Action,
		"duration_ms", duration.Milliseconds())

	return taskResult{analysis: analysis, result: result}
}
