package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nmtc-exchange/automatch/internal/domain"
	"github.com/nmtc-exchange/automatch/internal/repository"
	"github.com/nmtc-exchange/automatch/internal/scan"
	"github.com/nmtc-exchange/automatch/internal/screen"
	"github.com/nmtc-exchange/automatch/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	screens   *screen.Engine
	scanner   *scan.Service
	version   string
	reasonCap int
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, screens *screen.Engine, scanner *scan.Service, version string, reasonCap int) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		screens:   screens,
		scanner:   scanner,
		version:   version,
		reasonCap: reasonCap,
	}
}

// MatchRequest is the request body for POST /match.
type MatchRequest struct {
	DealID string `json:"dealId"`
	CDEID  string `json:"cdeId"`
}

// MatchResponse is the response for POST /match.
type MatchResponse struct {
	MatchID     string         `json:"matchId"`
	DealID      string         `json:"dealId"`
	CDEID       string         `json:"cdeId"`
	Score       int            `json:"score"`
	Strength    string         `json:"strength"`
	GatePassed  bool           `json:"gatePassed"`
	GateFailure string         `json:"gateFailure,omitempty"`
	Reasons     []string       `json:"reasons,omitempty"`
	Breakdown   map[string]int `json:"breakdown,omitempty"`
	Metadata    struct {
		TraceID    string `json:"traceId"`
		DurationMs int64  `json:"durationMs"`
		Version    string `json:"version"`
	} `json:"metadata"`
}

// Match handles POST /match: scores one deal against one CDE. Gate failures
// are reported, not hidden; the caller sees why the pair was eliminated.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.DealID == "" || req.CDEID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "dealId and cdeId are required",
		})
		return
	}

	result, err := h.scanner.MatchPair(ctx, req.DealID, req.CDEID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "deal or cde not found",
			})
			return
		}
		slog.Error("match failed",
			"deal_id", req.DealID,
			"cde_id", req.CDEID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "match evaluation failed",
		})
		return
	}

	resp := MatchResponse{
		MatchID:     result.ID,
		DealID:      result.DealID,
		CDEID:       result.CDEID,
		Score:       result.Score,
		Strength:    domain.Strength(result.Score),
		GatePassed:  result.GatePassed(),
		GateFailure: result.GateFailure,
		Reasons:     h.capReasons(result.Reasons),
		Breakdown:   result.Breakdown,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.DurationMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// ScanRequest is the request body for POST /scan/deal and POST /scan/cde.
type ScanRequest struct {
	DealID     string `json:"dealId,omitempty"`
	CDEID      string `json:"cdeId,omitempty"`
	MinScore   *int   `json:"minScore,omitempty"`
	MaxResults *int   `json:"maxResults,omitempty"`
	Persist    bool   `json:"persist,omitempty"`

	// Async queues the scan on the event bus instead of running it inline.
	Async bool `json:"async,omitempty"`
}

// ScanMatch is one entry in a scan response.
type ScanMatch struct {
	MatchID   string         `json:"matchId"`
	DealID    string         `json:"dealId,omitempty"`
	CDEID     string         `json:"cdeId"`
	Score     int            `json:"score"`
	Strength  string         `json:"strength"`
	Reasons   []string       `json:"reasons,omitempty"`
	Breakdown map[string]int `json:"breakdown,omitempty"`
}

// ScanResponse is the response for scan endpoints.
type ScanResponse struct {
	DealID    string      `json:"dealId,omitempty"`
	CDEID     string      `json:"cdeId,omitempty"`
	Matches   []ScanMatch `json:"matches"`
	Count     int         `json:"count"`
	Evaluated int         `json:"evaluated"`
	Excluded  int         `json:"excluded"`
	Metadata  struct {
		TraceID    string `json:"traceId"`
		DurationMs int64  `json:"durationMs"`
		Version    string `json:"version"`
	} `json:"metadata"`
}

// ScanDeal handles POST /scan/deal: one deal against every active CDE.
func (h *Handler) ScanDeal(w http.ResponseWriter, r *http.Request) {
	h.runScan(w, r, true)
}

// ScanCDE handles POST /scan/cde: one CDE against every open deal.
func (h *Handler) ScanCDE(w http.ResponseWriter, r *http.Request) {
	h.runScan(w, r, false)
}

// scanCacheTTL bounds how long a directory change can go unseen by scans.
const scanCacheTTL = 30 * time.Second

func (h *Handler) runScan(w http.ResponseWriter, r *http.Request, byDeal bool) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if byDeal && req.DealID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "dealId is required",
		})
		return
	}
	if !byDeal && req.CDEID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cdeId is required",
		})
		return
	}

	if req.Async {
		h.queueScan(w, r, req, traceID, byDeal)
		return
	}

	opts := scan.Options{MinScore: req.MinScore, MaxResults: req.MaxResults, Persist: req.Persist}

	// Persisting scans have side effects and always run. Read-only scans
	// may be served from cache within the TTL.
	cacheKey := ""
	if h.cache != nil && !req.Persist {
		cacheKey = scanCacheKey(req, byDeal)
		if data, err := h.cache.Get(ctx, cacheKey); err == nil && data != nil {
			var cached scan.Result
			if err := json.Unmarshal(data, &cached); err == nil {
				h.writeScanResponse(w, &cached, traceID, time.Since(start).Milliseconds())
				return
			}
		}
	}

	var res *scan.Result
	var err error
	if byDeal {
		res, err = h.scanner.ScanDeal(ctx, req.DealID, opts)
	} else {
		res, err = h.scanner.ScanCDE(ctx, req.CDEID, opts)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "not found",
			})
			return
		}
		slog.Error("scan failed",
			"deal_id", req.DealID,
			"cde_id", req.CDEID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scan failed",
		})
		return
	}

	if cacheKey != "" {
		if data, err := json.Marshal(res); err == nil {
			if err := h.cache.Set(ctx, cacheKey, data, scanCacheTTL); err != nil {
				slog.Warn("failed to cache scan result", "key", cacheKey, "error", err)
			}
		}
	}

	h.writeScanResponse(w, res, traceID, res.DurationMs)
}

func scanCacheKey(req ScanRequest, byDeal bool) string {
	id := req.CDEID
	kind := "cde"
	if byDeal {
		id = req.DealID
		kind = "deal"
	}
	min, max := -1, -1
	if req.MinScore != nil {
		min = *req.MinScore
	}
	if req.MaxResults != nil {
		max = *req.MaxResults
	}
	return fmt.Sprintf("scan:%s:%s:min=%d:max=%d", kind, id, min, max)
}

func (h *Handler) writeScanResponse(w http.ResponseWriter, res *scan.Result, traceID string, durationMs int64) {
	resp := ScanResponse{
		DealID:    res.DealID,
		CDEID:     res.CDEID,
		Matches:   make([]ScanMatch, 0, len(res.Matches)),
		Count:     len(res.Matches),
		Evaluated: res.Evaluated,
		Excluded:  res.Excluded,
	}
	for _, m := range res.Matches {
		resp.Matches = append(resp.Matches, ScanMatch{
			MatchID:   m.ID,
			DealID:    m.DealID,
			CDEID:     m.CDEID,
			Score:     m.Score,
			Strength:  domain.Strength(m.Score),
			Reasons:   h.capReasons(m.Reasons),
			Breakdown: m.Breakdown,
		})
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.DurationMs = durationMs
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) queueScan(w http.ResponseWriter, r *http.Request, req ScanRequest, traceID string, byDeal bool) {
	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	msg := worker.ScanRequestMessage{
		MinScore:   req.MinScore,
		MaxResults: req.MaxResults,
		TraceID:    traceID,
	}
	if byDeal {
		msg.DealID = req.DealID
	} else {
		msg.CDEID = req.CDEID
	}

	payload, _ := json.Marshal(msg)
	if err := h.bus.Publish(r.Context(), domain.TopicScanRequested, payload); err != nil {
		slog.Error("failed to queue scan", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue scan",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "queued",
		"traceId": traceID,
	})
}

// CreateDeal handles POST /deals. New open deals are announced on the bus so
// the worker can auto-scan them.
func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var deal domain.Deal
	if err := json.NewDecoder(r.Body).Decode(&deal); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if deal.Name == "" || deal.State == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and state are required",
		})
		return
	}
	if deal.AllocationRequest <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "allocationRequest must be positive",
		})
		return
	}

	if deal.ID == "" {
		deal.ID = uuid.New().String()
	}
	if deal.Status == "" {
		deal.Status = domain.DealStatusOpen
	}
	now := time.Now().UTC()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}
	deal.UpdatedAt = now

	if err := h.repo.SaveDeal(ctx, &deal); err != nil {
		slog.Error("failed to save deal", "id", deal.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save deal",
		})
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(&deal)
		if err := h.bus.Publish(ctx, domain.TopicDealCreated, payload); err != nil {
			slog.Error("failed to publish deal event", "id", deal.ID, "error", err)
		}
	}

	slog.Info("deal created", "id", deal.ID, "state", deal.State)
	writeJSON(w, http.StatusCreated, &deal)
}

// GetDeal handles GET /deals/{id}.
func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "id")
	if dealID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "deal id is required",
		})
		return
	}

	deal, err := h.repo.GetDeal(r.Context(), dealID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "deal not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, deal)
}

// ListDeals handles GET /deals: all open deals in the store.
func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.repo.ListOpenDeals(r.Context())
	if err != nil {
		slog.Error("failed to list deals", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list deals",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deals": deals,
		"count": len(deals),
	})
}

// ListDealMatches handles GET /deals/{id}/matches: persisted matches for a
// deal, best score first.
func (h *Handler) ListDealMatches(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "id")
	if dealID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "deal id is required",
		})
		return
	}

	matches, err := h.repo.ListMatchesForDeal(r.Context(), dealID)
	if err != nil {
		slog.Error("failed to list matches", "deal_id", dealID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list matches",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

// CreateCDE handles POST /cdes and PUT /cdes/{id}. Updates invalidate the
// enrichment cache via the bus.
func (h *Handler) CreateCDE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cde domain.CDEProfile
	if err := json.NewDecoder(r.Body).Decode(&cde); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if id := chi.URLParam(r, "id"); id != "" {
		cde.ID = id
	}
	if cde.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}
	if cde.ID == "" {
		cde.ID = uuid.New().String()
	}
	if cde.Status == "" {
		cde.Status = domain.CDEStatusActive
	}
	now := time.Now().UTC()
	if cde.CreatedAt.IsZero() {
		cde.CreatedAt = now
	}
	cde.UpdatedAt = now

	if err := h.repo.SaveCDE(ctx, &cde); err != nil {
		slog.Error("failed to save cde", "id", cde.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save cde",
		})
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(&cde)
		if err := h.bus.Publish(ctx, domain.TopicCDEUpdated, payload); err != nil {
			slog.Error("failed to publish cde event", "id", cde.ID, "error", err)
		}
	}

	slog.Info("cde saved", "id", cde.ID, "name", cde.Name)
	writeJSON(w, http.StatusCreated, &cde)
}

// GetCDE handles GET /cdes/{id}.
func (h *Handler) GetCDE(w http.ResponseWriter, r *http.Request) {
	cdeID := chi.URLParam(r, "id")
	if cdeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cde id is required",
		})
		return
	}

	cde, err := h.repo.GetCDE(r.Context(), cdeID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "cde not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, cde)
}

// ListCDEs handles GET /cdes: all active CDEs in the directory.
func (h *Handler) ListCDEs(w http.ResponseWriter, r *http.Request) {
	cdes, err := h.repo.ListActiveCDEs(r.Context())
	if err != nil {
		slog.Error("failed to list cdes", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list cdes",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cdes":  cdes,
		"count": len(cdes),
	})
}

// GetMatch handles GET /matches/{id}.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")
	if matchID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "match id is required",
		})
		return
	}

	match, err := h.repo.GetMatch(r.Context(), matchID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "match not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, match)
}

// ListScreens returns all loaded compliance screens.
func (h *Handler) ListScreens(w http.ResponseWriter, r *http.Request) {
	if h.screens == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screen engine not available",
		})
		return
	}

	loaded := h.screens.LoadedScreens()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"screens": loaded,
		"count":   len(loaded),
		"source":  "database",
	})
}

// GetScreen handles GET /screens/{id}: the stored screen configuration,
// which may differ from what is loaded until the next reload.
func (h *Handler) GetScreen(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "id")
	if screenID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "screen id is required",
		})
		return
	}

	cfg, err := h.repo.GetScreenConfig(r.Context(), screenID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "screen not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// CreateScreenRequest is the request body for creating a screen.
type CreateScreenRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Action      string `json:"action"`
	Reason      string `json:"reason,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// CreateScreen creates a new screen and saves it to the database.
// After saving, call POST /screens/reload to hot-reload into the engine.
func (h *Handler) CreateScreen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.screens == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screen engine not available",
		})
		return
	}

	var req CreateScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Action != domain.ScreenActionExclude && req.Action != domain.ScreenActionFlag {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action must be exclude or flag",
		})
		return
	}
	if req.Action == domain.ScreenActionFlag && req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "flag screens require a reason",
		})
		return
	}

	cfg := &domain.ScreenConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Action:      req.Action,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression before persisting
	if err := h.screens.ValidateScreen(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid screen expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveScreenConfig(ctx, cfg); err != nil {
		slog.Error("failed to save screen config", "id", cfg.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save screen",
		})
		return
	}

	slog.Info("screen created", "id", cfg.ID, "name", cfg.Name, "action", cfg.Action)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"screen":  cfg,
		"message": "Screen created. Call POST /screens/reload to apply changes.",
	})
}

// ReloadScreens reloads all screens from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadScreens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.screens == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screen engine not available",
		})
		return
	}

	configs, err := h.repo.ListScreenConfigs(ctx)
	if err != nil {
		slog.Error("failed to list screens from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load screens from database",
		})
		return
	}

	if err := h.screens.ReloadScreens(configs); err != nil {
		slog.Error("failed to reload screens into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload screens: " + err.Error(),
		})
		return
	}

	slog.Info("screens reloaded from database", "count", h.screens.ScreensCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "screens reloaded successfully",
		"count":   h.screens.ScreensCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) capReasons(reasons []string) []string {
	if h.reasonCap <= 0 || len(reasons) <= h.reasonCap {
		return reasons
	}
	return reasons[:h.reasonCap]
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
