// Package worker provides async scan processing from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nmtc-exchange/automatch/internal/domain"
	"github.com/nmtc-exchange/automatch/internal/enrich"
	"github.com/nmtc-exchange/automatch/internal/scan"
)

// Worker consumes scan requests and deal events from the EventBus and runs
// them through the scan pipeline.
type Worker struct {
	bus      domain.EventBus
	scanner  *scan.Service
	enricher *enrich.Service

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, scanner *scan.Service, enricher *enrich.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		scanner:  scanner,
		enricher: enricher,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the scan pipeline topics.
func (w *Worker) Start() error {
	subs := []struct {
		topic   string
		handler domain.MessageHandler
	}{
		{domain.TopicScanRequested, w.handleScanRequest},
		{domain.TopicDealCreated, w.handleDealCreated},
		{domain.TopicCDEUpdated, w.handleCDEUpdated},
	}

	for _, s := range subs {
		sub, err := w.bus.Subscribe(w.ctx, s.topic, s.handler)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started", "topics", len(w.subscriptions))
	return nil
}

// ScanRequestMessage is the payload on the scan-requested topic. Exactly one
// of DealID or CDEID selects the scan direction.
type ScanRequestMessage struct {
	DealID     string `json:"dealId,omitempty"`
	CDEID      string `json:"cdeId,omitempty"`
	MinScore   *int   `json:"minScore,omitempty"`
	MaxResults *int   `json:"maxResults,omitempty"`
	TraceID    string `json:"traceId,omitempty"`
}

// handleScanRequest runs a requested scan and persists the results.
func (w *Worker) handleScanRequest(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req ScanRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse scan request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	opts := scan.Options{MinScore: req.MinScore, MaxResults: req.MaxResults, Persist: true}

	var res *scan.Result
	var err error
	switch {
	case req.DealID != "":
		res, err = w.scanner.ScanDeal(ctx, req.DealID, opts)
	case req.CDEID != "":
		res, err = w.scanner.ScanCDE(ctx, req.CDEID, opts)
	default:
		slog.Warn("scan request names neither deal nor cde", "message_id", msg.ID)
		return nil
	}
	if err != nil {
		slog.Error("scan failed",
			"deal_id", req.DealID,
			"cde_id", req.CDEID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	slog.Info("scan processed",
		"deal_id", req.DealID,
		"cde_id", req.CDEID,
		"trace_id", traceID,
		"evaluated", res.Evaluated,
		"matched", len(res.Matches),
		"excluded", res.Excluded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// handleDealCreated auto-scans a newly created deal with service defaults.
func (w *Worker) handleDealCreated(ctx context.Context, msg *domain.Message) error {
	var deal domain.Deal
	if err := json.Unmarshal(msg.Payload, &deal); err != nil {
		slog.Error("failed to parse deal event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if deal.ID == "" || deal.Status != domain.DealStatusOpen {
		return nil
	}

	res, err := w.scanner.ScanDeal(ctx, deal.ID, scan.Options{Persist: true})
	if err != nil {
		slog.Error("auto-scan failed", "deal_id", deal.ID, "error", err)
		return err
	}

	slog.Info("deal auto-scanned",
		"deal_id", deal.ID,
		"matched", len(res.Matches),
	)
	return nil
}

// handleCDEUpdated drops the stale enrichment cache entry.
func (w *Worker) handleCDEUpdated(ctx context.Context, msg *domain.Message) error {
	var cde domain.CDEProfile
	if err := json.Unmarshal(msg.Payload, &cde); err != nil {
		return err
	}
	if cde.ID != "" {
		w.enricher.Invalidate(ctx, cde.ID)
	}
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
