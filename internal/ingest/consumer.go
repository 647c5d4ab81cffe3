// Package ingest consumes engagement samples from Kafka and feeds them to
// the analyzer.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/promoguard/fraud-engine/internal/analyzer"
	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/metrics"
	"github.com/promoguard/fraud-engine/internal/sample"
)

// Consumer reads sample messages off the intake topic. One fetch loop feeds
// a bounded worker pool; offsets are committed only after the sample has
// been analyzed, so a crash re-delivers rather than drops.
type Consumer struct {
	cfg     config.KafkaConfig
	logger  *slog.Logger
	reader  *kafka.Reader
	an      *analyzer.Analyzer
	metrics *metrics.Collector

	jobs         chan kafka.Message
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewConsumer creates a consumer for the configured sample topic.
func NewConsumer(cfg config.KafkaConfig, an *analyzer.Analyzer, collector *metrics.Collector, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.SampleTopic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		CommitInterval: time.Duration(cfg.CommitIntervalMs) * time.Millisecond,
	})
	return &Consumer{
		cfg:          cfg,
		logger:       logger,
		reader:       reader,
		an:           an,
		metrics:      collector,
		jobs:         make(chan kafka.Message, cfg.WorkerCount*2),
		shutdownChan: make(chan struct{}),
	}
}

// Start launches the fetch loop and processing workers.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("Starting sample consumer",
		"topic", c.cfg.SampleTopic,
		"group_id", c.cfg.GroupID,
		"workers", c.cfg.WorkerCount)

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}
	c.wg.Add(1)
	go c.fetchLoop(ctx)
}

// Stop closes the reader and waits for in-flight messages.
func (c *Consumer) Stop() error {
	c.logger.Info("Stopping sample consumer")
	close(c.shutdownChan)
	err := c.reader.Close()
	c.wg.Wait()
	c.logger.Info("Sample consumer stopped")
	if err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}

func (c *Consumer) fetchLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.jobs)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return
			}
			select {
			case <-c.shutdownChan:
				return
			default:
			}
			c.logger.Error("Failed to fetch sample message", "error", err)
			time.Sleep(time.Second)
			continue
		}
		select {
		case c.jobs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.wg.Done()
	for msg := range c.jobs {
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	var s sample.EngagementSample
	if err := json.Unmarshal(msg.Value, &s); err != nil {
		// Malformed payloads are committed and skipped; re-delivery cannot
		// fix them.
		c.metrics.IngestMessage(false)
		c.logger.Error("Failed to decode sample message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err)
		c.commit(ctx, msg)
		return
	}

	if _, _, err := c.an.Analyze(ctx, s); err != nil {
		c.metrics.IngestMessage(false)
		c.logger.Error("Failed to analyze ingested sample",
			"promoter_id", s.PromoterID,
			"campaign_id", s.CampaignID,
			"post_id", s.PostID,
			"error", err)
		// Validation failures are terminal for the message; analysis
		// timeouts would also recur, so commit either way.
		c.commit(ctx, msg)
		return
	}

	c.metrics.IngestMessage(true)
	c.commit(ctx, msg)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("Failed to commit message offset",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err)
	}
}
