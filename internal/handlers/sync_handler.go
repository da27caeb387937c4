package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lukasbrandt/advisory-backend/internal/dto"
	"github.com/lukasbrandt/advisory-backend/internal/models"
	"github.com/lukasbrandt/advisory-backend/internal/reconcile"
)

type SyncHandler struct {
	orchestrator *reconcile.Orchestrator
	store        *reconcile.Store
}

func NewSyncHandler(orchestrator *reconcile.Orchestrator, store *reconcile.Store) *SyncHandler {
	return &SyncHandler{orchestrator: orchestrator, store: store}
}

// Trigger starts a synchronous sync pass. A 409 means one is already
// running; the caller should retry later rather than queue.
func (h *SyncHandler) Trigger(c *fiber.Ctx) error {
	opts := reconcile.Options{Trigger: reconcile.TriggerManual}
	opts.DaysBack = c.QueryInt("days_back", 0)
	opts.DaysForward = c.QueryInt("days_forward", 0)
	if ms := c.QueryInt("budget_ms", 0); ms > 0 {
		opts.Budget = time.Duration(ms) * time.Millisecond
	}

	result, err := h.orchestrator.Sync(c.Context(), opts)
	if err != nil {
		if errors.Is(err, reconcile.ErrSyncAlreadyRunning) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: "A sync is already running",
			})
		}
		slog.Error("sync failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Sync failed",
		})
	}
	return c.JSON(result)
}

// Runs lists recent sync runs, newest first.
func (h *SyncHandler) Runs(c *fiber.Ctx) error {
	runs, err := h.store.RecentRuns(c.QueryInt("limit", 20))
	if err != nil {
		slog.Error("failed to load sync runs", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load sync runs",
		})
	}
	out := make([]dto.SyncRunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, runResponse(r))
	}
	return c.JSON(out)
}

// LatestRun returns the newest run or 404 when none ran yet.
func (h *SyncHandler) LatestRun(c *fiber.Ctx) error {
	run, err := h.store.LatestRun()
	if err != nil {
		slog.Error("failed to load latest sync run", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load latest sync run",
		})
	}
	if run == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "No sync has run yet",
		})
	}
	return c.JSON(runResponse(*run))
}

// MatchedActivities lists activities linked to scheduling events.
func (h *SyncHandler) MatchedActivities(c *fiber.Ctx) error {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "since must be an RFC3339 timestamp",
			})
		}
		since = &t
	}
	activities, err := h.store.MatchedActivities(since, c.QueryInt("limit", 100))
	if err != nil {
		slog.Error("failed to load matched activities", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to load matched activities",
		})
	}
	return c.JSON(activities)
}

func runResponse(r models.SyncRun) dto.SyncRunResponse {
	resp := dto.SyncRunResponse{
		ID:         r.ID.String(),
		Trigger:    r.Trigger,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Partial:    r.Partial,
		Error:      r.Error,
	}
	if len(r.Resources) > 0 {
		var resources map[string]interface{}
		if err := json.Unmarshal(r.Resources, &resources); err == nil {
			resp.Resources = resources
		}
	}
	if len(r.Matching) > 0 {
		var matching map[string]interface{}
		if err := json.Unmarshal(r.Matching, &matching); err == nil {
			resp.Matching = matching
		}
	}
	return resp
}
