package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nmtc-exchange/automatch/internal/bus"
	"github.com/nmtc-exchange/automatch/internal/domain"
	"github.com/nmtc-exchange/automatch/internal/enrich"
	"github.com/nmtc-exchange/automatch/internal/match"
	"github.com/nmtc-exchange/automatch/internal/repository"
	"github.com/nmtc-exchange/automatch/internal/scan"
)

func setupPipeline(t *testing.T) (domain.Repository, *bus.ChannelBus, *Worker) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	enricher := enrich.NewService(repo, nil, 0)
	engine := match.NewEngine(nil, 5)
	scanner := scan.NewService(repo, engine, nil, enricher, eventBus, scan.Config{
		DefaultMinScore:   50,
		DefaultMaxResults: 25,
	})

	w := NewWorker(eventBus, scanner, enricher)
	return repo, eventBus, w
}

func seedData(t *testing.T, repo domain.Repository) {
	t.Helper()
	ctx := context.Background()

	if err := repo.SaveDeal(ctx, &domain.Deal{
		ID:                "deal-001",
		SponsorID:         "sponsor-001",
		Name:              "Eastside Clinic",
		Status:            domain.DealStatusOpen,
		State:             "IL",
		AllocationRequest: 9_000_000,
	}); err != nil {
		t.Fatalf("seed deal failed: %v", err)
	}

	if err := repo.SaveCDE(ctx, &domain.CDEProfile{
		ID:              "cde-001",
		Name:            "National Capital CDE",
		Status:          domain.CDEStatusActive,
		ServiceAreaType: "national",
		AmountRemaining: 30_000_000,
	}); err != nil {
		t.Fatalf("seed cde failed: %v", err)
	}
}

func TestWorkerStartStop(t *testing.T) {
	_, _, w := setupPipeline(t)

	if err := w.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 3 {
		t.Errorf("expected 3 subscriptions, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Error("expected 0 subscriptions after stop")
	}
}

func TestWorkerProcessesScanRequest(t *testing.T) {
	repo, eventBus, w := setupPipeline(t)
	seedData(t, repo)
	ctx := context.Background()

	if err := w.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	var completed atomic.Bool
	var completedPayload []byte
	eventBus.Subscribe(ctx, domain.TopicScanCompleted, func(ctx context.Context, msg *domain.Message) error {
		completedPayload = msg.Payload
		completed.Store(true)
		return nil
	})

	time.Sleep(50 * time.Millisecond)

	payload, _ := json.Marshal(ScanRequestMessage{DealID: "deal-001", TraceID: "trace-001"})
	if err := eventBus.Publish(ctx, domain.TopicScanRequested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !completed.Load() {
		select {
		case <-deadline:
			t.Fatal("scan did not complete within 2s")
		case <-time.After(20 * time.Millisecond):
		}
	}

	var res scan.Result
	if err := json.Unmarshal(completedPayload, &res); err != nil {
		t.Fatalf("failed to parse completion: %v", err)
	}
	if res.DealID != "deal-001" || len(res.Matches) != 1 {
		t.Errorf("unexpected scan result: %+v", res)
	}
	if res.Matches[0].Score != 100 {
		t.Errorf("expected perfect score for the default national CDE, got %d", res.Matches[0].Score)
	}

	// Worker scans persist their matches.
	saved, err := repo.ListMatchesForDeal(ctx, "deal-001")
	if err != nil {
		t.Fatalf("list matches failed: %v", err)
	}
	if len(saved) != 1 {
		t.Errorf("expected persisted match, got %d", len(saved))
	}
}

func TestWorkerAutoScansNewDeals(t *testing.T) {
	repo, eventBus, w := setupPipeline(t)
	seedData(t, repo)
	ctx := context.Background()

	if err := w.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	var scored atomic.Int32
	eventBus.Subscribe(ctx, domain.TopicMatchScored, func(ctx context.Context, msg *domain.Message) error {
		scored.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)

	deal, _ := repo.GetDeal(ctx, "deal-001")
	payload, _ := json.Marshal(deal)
	eventBus.Publish(ctx, domain.TopicDealCreated, payload)

	deadline := time.After(2 * time.Second)
	for scored.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("auto-scan did not publish a match within 2s")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWorkerIgnoresMalformedScanRequest(t *testing.T) {
	_, eventBus, w := setupPipeline(t)

	if err := w.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	// Neither deal nor CDE named; worker should drop it quietly.
	payload, _ := json.Marshal(ScanRequestMessage{})
	if err := eventBus.Publish(context.Background(), domain.TopicScanRequested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
}
