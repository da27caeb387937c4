package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lukasbrandt/advisory-backend/internal/calendly"
	"github.com/lukasbrandt/advisory-backend/internal/closeapi"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sync triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Options tunes one sync pass. Zero values fall back to the orchestrator's
// configured defaults.
type Options struct {
	DaysBack    int
	DaysForward int
	Budget      time.Duration
	Trigger     string
}

// ResourceResult reports one resource within a run.
type ResourceResult struct {
	Synced  int      `json:"synced"`
	Skipped int      `json:"skipped"`
	Deleted int      `json:"deleted,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Partial bool     `json:"partial,omitempty"`
}

// Result reports one full sync pass.
type Result struct {
	RunID     string                    `json:"run_id"`
	Trigger   string                    `json:"trigger"`
	StartedAt time.Time                 `json:"started_at"`
	Duration  time.Duration             `json:"duration"`
	Partial   bool                      `json:"partial"`
	Resources map[string]ResourceResult `json:"resources"`
	Matching  MatchSummary              `json:"matching"`
}

// Defaults carries the configured sync parameters.
type Defaults struct {
	DaysBack      int
	DaysForward   int
	CallsDaysBack int
	BatchSize     int
	Budget        time.Duration
	ActivityTypes []closeapi.ActivityType
}

// Orchestrator drives a full sync pass across both upstreams in dependency
// order. At most one pass runs at a time; overlapping requests are rejected,
// never queued.
type Orchestrator struct {
	mu       sync.Mutex
	db       *gorm.DB
	close    *closeapi.Client
	calendly *calendly.Client
	store    *Store
	tracker  *Tracker
	matcher  *Matcher
	defaults Defaults
	now      func() time.Time
}

func NewOrchestrator(db *gorm.DB, closeClient *closeapi.Client, calendlyClient *calendly.Client, defaults Defaults) *Orchestrator {
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = 50
	}
	if defaults.Budget <= 0 {
		defaults.Budget = 25 * time.Second
	}
	return &Orchestrator{
		db:       db,
		close:    closeClient,
		calendly: calendlyClient,
		store:    NewStore(db),
		tracker:  NewTracker(db),
		matcher:  NewMatcher(db),
		defaults: defaults,
		now:      time.Now,
	}
}

// Sync runs one pass. Resources are processed in dependency order so foreign
// references resolve within the same run: users, leads, calls, appointments,
// scheduling events, activities, then matching. When the time budget runs out
// the remaining work is skipped and the run is marked partial; a partial run
// never deletes anything.
func (o *Orchestrator) Sync(ctx context.Context, opts Options) (*Result, error) {
	if !o.mu.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer o.mu.Unlock()

	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = o.defaults.DaysBack
	}
	daysForward := opts.DaysForward
	if daysForward <= 0 {
		daysForward = o.defaults.DaysForward
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = o.defaults.Budget
	}
	trigger := opts.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}

	start := o.now()
	deadline := start.Add(budget)
	run, err := o.store.CreateSyncRun(trigger)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:     run.ID.String(),
		Trigger:   trigger,
		StartedAt: start,
		Resources: make(map[string]ResourceResult),
	}
	slog.Info("sync started", "trigger", trigger, "days_back", daysBack, "days_forward", daysForward, "budget", budget)

	state := &runState{deadline: deadline, now: o.now}

	var leads []closeapi.Lead
	o.syncUsers(ctx, state, result)
	leads = o.syncLeads(ctx, state, result)
	o.syncCalls(ctx, state, result)
	o.syncAppointments(ctx, state, result, leads)
	o.syncEvents(ctx, state, result, daysBack, daysForward)
	o.syncActivities(ctx, state, result, daysBack)

	if !state.exceeded() {
		if linked, err := o.store.LinkAppointmentsToEvents(); err != nil {
			slog.Error("appointment-event linking failed", "error", err)
		} else if linked > 0 {
			slog.Info("appointments linked to scheduling events", "linked", linked)
		}
		if canceled, err := o.store.PropagateEventCancellations(); err != nil {
			slog.Error("cancellation propagation failed", "error", err)
		} else if canceled > 0 {
			slog.Info("appointments canceled from scheduling events", "canceled", canceled)
		}
	}

	if !state.exceeded() {
		summary, err := o.matcher.Run()
		if err != nil {
			slog.Error("matching pass failed", "error", err)
		} else {
			result.Matching = summary
		}
	} else {
		result.Partial = true
	}

	for _, r := range result.Resources {
		if r.Partial {
			result.Partial = true
		}
	}
	result.Duration = o.now().Sub(start)

	resourcesJSON, _ := json.Marshal(result.Resources)
	matchingJSON, _ := json.Marshal(result.Matching)
	if err := o.store.FinishSyncRun(run, result.Partial, datatypes.JSON(resourcesJSON), datatypes.JSON(matchingJSON), nil); err != nil {
		slog.Error("failed to persist sync run", "error", err)
	}

	slog.Info("sync finished", "duration", result.Duration, "partial", result.Partial)
	return result, nil
}

// runState tracks the shared time budget across resources.
type runState struct {
	deadline time.Time
	now      func() time.Time
}

func (s *runState) exceeded() bool { return !s.now().Before(s.deadline) }

func (o *Orchestrator) syncUsers(ctx context.Context, state *runState, result *Result) {
	res := ResourceResult{}
	defer func() { result.Resources["users"] = res }()

	if state.exceeded() {
		res.Partial = true
		return
	}
	users, err := o.close.Users(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return
	}

	for _, batch := range chunk(users, o.defaults.BatchSize) {
		if state.exceeded() {
			res.Partial = true
			res.Skipped += remaining(users, res.Synced)
			return
		}
		batch := batch
		err := o.db.Transaction(func(tx *gorm.DB) error {
			store := o.store.WithDB(tx)
			for _, u := range batch {
				if _, _, err := store.UpsertUser(UserRecord{
					CloseUserID: u.ID,
					Name:        u.Name(),
					Email:       u.Email,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			o.retryBatchUsers(batch, &res)
			continue
		}
		res.Synced += len(batch)
	}
}

// retryBatchUsers replays a failed batch record by record so one bad row
// cannot sink its batch-mates.
func (o *Orchestrator) retryBatchUsers(batch []closeapi.User, res *ResourceResult) {
	for _, u := range batch {
		if _, _, err := o.store.UpsertUser(UserRecord{CloseUserID: u.ID, Name: u.Name(), Email: u.Email}); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("user %s: %v", u.ID, err))
			continue
		}
		res.Synced++
	}
}

func (o *Orchestrator) syncLeads(ctx context.Context, state *runState, result *Result) []closeapi.Lead {
	res := ResourceResult{}
	defer func() { result.Resources["leads"] = res }()

	if state.exceeded() {
		res.Partial = true
		return nil
	}
	leads, err := o.close.Leads(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return nil
	}

	for _, batch := range chunk(leads, o.defaults.BatchSize) {
		if state.exceeded() {
			res.Partial = true
			res.Skipped += remaining(leads, res.Synced)
			return leads
		}
		batch := batch
		err := o.db.Transaction(func(tx *gorm.DB) error {
			store := o.store.WithDB(tx)
			for _, l := range batch {
				if _, _, err := store.UpsertLead(leadRecord(l)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			for _, l := range batch {
				if _, _, err := o.store.UpsertLead(leadRecord(l)); err != nil {
					res.Errors = append(res.Errors, fmt.Sprintf("lead %s: %v", l.ID, err))
					continue
				}
				res.Synced++
			}
			continue
		}
		res.Synced += len(batch)
	}
	return leads
}

func leadRecord(l closeapi.Lead) LeadRecord {
	var firstContact *time.Time
	if raw := l.Custom[closeapi.FirstContactFieldID]; raw != "" {
		if t, ok := parseFieldDate(raw); ok {
			firstContact = &t
		}
	}
	if firstContact == nil {
		firstContact = l.DateCreated
	}
	return LeadRecord{
		CloseLeadID:    l.ID,
		Name:           l.ContactName(),
		Email:          l.Email(),
		Phone:          l.Phone(),
		Status:         l.StatusLabel,
		FirstContactAt: firstContact,
		OwnerCloseID:   l.OwnerID(),
	}
}

func (o *Orchestrator) syncCalls(ctx context.Context, state *runState, result *Result) {
	res := ResourceResult{}
	defer func() { result.Resources["calls"] = res }()

	if state.exceeded() {
		res.Partial = true
		return
	}

	from := o.now().AddDate(0, 0, -o.defaults.CallsDaysBack).Format("2006-01-02")
	calls, err := o.close.Calls(ctx, from, "")
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return
	}

	outcomes, err := o.close.Outcomes(ctx)
	if err != nil {
		slog.Warn("outcome lookup unavailable, storing raw ids", "error", err)
		outcomes = map[string]string{}
	}

	record := func(c closeapi.Call) CallRecord {
		disposition := outcomes[c.OutcomeID]
		if disposition == "" {
			disposition = c.OutcomeID
		}
		return CallRecord{
			CloseCallID: c.ID,
			UserCloseID: c.CallerID(),
			LeadCloseID: c.LeadID,
			Direction:   c.NormalizedDirection(),
			Status:      c.Status,
			Disposition: disposition,
			Duration:    c.Duration,
			CallDate:    c.Date(o.now()),
			Note:        c.Note,
		}
	}

	for _, batch := range chunk(calls, o.defaults.BatchSize) {
		if state.exceeded() {
			res.Partial = true
			res.Skipped += remaining(calls, res.Synced)
			return
		}
		batch := batch
		err := o.db.Transaction(func(tx *gorm.DB) error {
			store := o.store.WithDB(tx)
			for _, c := range batch {
				if _, _, err := store.UpsertCall(record(c)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			for _, c := range batch {
				if _, _, err := o.store.UpsertCall(record(c)); err != nil {
					res.Errors = append(res.Errors, fmt.Sprintf("call %s: %v", c.ID, err))
					continue
				}
				res.Synced++
			}
			continue
		}
		res.Synced += len(batch)
	}
}

func (o *Orchestrator) syncAppointments(ctx context.Context, state *runState, result *Result, leads []closeapi.Lead) {
	res := ResourceResult{}
	defer func() { result.Resources["appointments"] = res }()

	if state.exceeded() {
		res.Partial = true
		return
	}

	owners := make(map[string]string, len(leads))
	var records []AppointmentRecord
	for _, l := range leads {
		owners[l.ID] = l.OwnerID()
		if rec, ok := AppointmentFromLead(l); ok {
			records = append(records, rec)
		}
	}

	opps, err := o.close.Opportunities(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	} else {
		records = append(records, AppointmentsFromOpportunities(opps, func(leadCloseID string) string {
			return owners[leadCloseID]
		})...)
	}

	for i, rec := range records {
		if state.exceeded() {
			res.Partial = true
			res.Skipped += len(records) - i
			return
		}
		if _, _, err := o.tracker.Apply(rec); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("appointment %s/%s: %v", rec.LeadCloseID, rec.Type, err))
			continue
		}
		res.Synced++
	}
}

func (o *Orchestrator) syncEvents(ctx context.Context, state *runState, result *Result, daysBack, daysForward int) {
	res := ResourceResult{}
	defer func() { result.Resources["events"] = res }()

	if state.exceeded() {
		res.Partial = true
		return
	}

	events, complete, err := o.calendly.AllEventsWithDetails(ctx, daysBack, daysForward)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		res.Partial = true
		return
	}
	if !complete {
		res.Partial = true
	}

	fetched := make(map[string]struct{}, len(events))
	for _, batch := range chunk(events, o.defaults.BatchSize) {
		if state.exceeded() {
			res.Partial = true
			res.Skipped += remaining(events, res.Synced)
			break
		}
		for _, e := range batch {
			rec := eventRecord(e)
			fetched[rec.URI] = struct{}{}
			if _, _, err := o.store.UpsertEvent(rec); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("event %s: %v", calendly.EventURITail(e.URI), err))
				continue
			}
			res.Synced++
		}
	}

	// Absence is only meaningful after a complete fetch of the window.
	if res.Partial {
		slog.Warn("skipping event deletion reconciliation after partial fetch")
		return
	}
	now := o.now()
	deleted, err := o.store.DeleteEventsAbsent(fetched,
		now.AddDate(0, 0, -daysBack), now.AddDate(0, 0, daysForward))
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return
	}
	res.Deleted = int(deleted)
}

func eventRecord(e calendly.Event) EventRecord {
	rec := EventRecord{
		URI:           e.URI,
		EventTypeName: e.Name,
		MappedType:    calendly.MapEventType(e.Name),
		StartTime:     e.StartTime,
		EndTime:       e.EndTime,
		Canceled:      strings.EqualFold(e.Status, "canceled"),
		HostName:      e.HostName,
		HostEmail:     e.HostEmail,
	}
	for _, inv := range e.Invitees {
		if inv.Status == "canceled" {
			rec.Canceled = true
		}
		if rec.InviteeEmail == "" && inv.Email != "" {
			rec.InviteeName = inv.Name
			rec.InviteeEmail = inv.Email
		}
	}
	return rec
}

func (o *Orchestrator) syncActivities(ctx context.Context, state *runState, result *Result, daysBack int) {
	res := ResourceResult{}
	defer func() { result.Resources["activities"] = res }()

	if state.exceeded() {
		res.Partial = true
		return
	}

	from := o.now().AddDate(0, 0, -daysBack).Format("2006-01-02")
	for _, at := range o.defaults.ActivityTypes {
		if state.exceeded() {
			res.Partial = true
			return
		}
		activities, err := o.close.CustomActivities(ctx, at.TypeID, from, "")
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", at.Key, err))
			continue
		}

		record := func(a closeapi.Activity) ActivityRecord {
			resultValue := a.Result(at.ResultField)
			var resultPtr *string
			if resultValue != "" {
				resultPtr = &resultValue
			}
			return ActivityRecord{
				CloseActivityID: a.ID,
				ActivityType:    at.Key,
				ActivityTypeID:  at.TypeID,
				ResultFieldID:   at.ResultField,
				ResultValue:     resultPtr,
				LeadCloseID:     a.LeadID,
				UserCloseID:     a.CreatorID(),
				CustomFields:    a.Custom,
				DateCreated:     derefTime(a.DateCreated, o.now()),
				DateUpdated:     derefTime(a.DateUpdated, o.now()),
			}
		}

		for _, batch := range chunk(activities, o.defaults.BatchSize) {
			if state.exceeded() {
				res.Partial = true
				return
			}
			batch := batch
			var synced, skipped int
			err := o.db.Transaction(func(tx *gorm.DB) error {
				synced, skipped = 0, 0
				store := o.store.WithDB(tx)
				for _, a := range batch {
					_, changed, err := store.UpsertActivity(record(a))
					if err != nil {
						return err
					}
					if changed {
						synced++
					} else {
						skipped++
					}
				}
				return nil
			})
			if err != nil {
				for _, a := range batch {
					_, changed, err := o.store.UpsertActivity(record(a))
					if err != nil {
						res.Errors = append(res.Errors, fmt.Sprintf("activity %s: %v", a.ID, err))
						continue
					}
					if changed {
						res.Synced++
					} else {
						res.Skipped++
					}
				}
				continue
			}
			res.Synced += synced
			res.Skipped += skipped
		}
	}
}

// chunk splits items into batches of at most size.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var batches [][]T
	for size > 0 && len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		batches = append(batches, items[:n])
		items = items[n:]
	}
	return batches
}

func remaining[T any](items []T, done int) int {
	if done >= len(items) {
		return 0
	}
	return len(items) - done
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}
