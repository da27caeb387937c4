package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukasbrandt/advisory-backend/internal/calendly"
	"github.com/lukasbrandt/advisory-backend/internal/closeapi"
	"github.com/lukasbrandt/advisory-backend/internal/models"
)

func closeStub(t *testing.T, meetingDate, activityDate string) *httptest.Server {
	t.Helper()
	respond := func(w http.ResponseWriter, data interface{}) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data, "has_more": false})
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/":
			respond(w, []map[string]string{
				{"id": "user_1", "display_name": "Lukas Brandt", "email": "lukas@advisory.test"},
			})
		case "/lead/":
			respond(w, []map[string]interface{}{
				{
					"id":           "lead_1",
					"name":         "Acme GmbH",
					"status_label": "Kunde",
					"created_by":   "user_1",
					"contacts": []map[string]interface{}{
						{"name": "Jane Kunde", "emails": []map[string]string{{"email": "jane@acme.test"}}},
					},
					"custom." + closeapi.FirstMeetingDateFieldID: meetingDate,
				},
			})
		case "/activity/call/":
			respond(w, []map[string]interface{}{
				{
					"id":           "call_1",
					"direction":    "incoming",
					"status":       "completed",
					"outcome_id":   "outcome_1",
					"duration":     180,
					"created_by":   "user_1",
					"lead_id":      "lead_1",
					"date_created": "2026-08-25T09:00:00Z",
				},
			})
		case "/outcome/":
			respond(w, []map[string]string{{"id": "outcome_1", "name": "Erreicht"}})
		case "/opportunity/":
			respond(w, []map[string]interface{}{})
		case "/activity/":
			respond(w, []map[string]interface{}{
				{
					"id":                      "acti_1",
					"_type":                   "CustomActivity",
					"custom_activity_type_id": "actitype_test",
					"lead_id":                 "lead_1",
					"created_by":              "user_1",
					"date_created":            activityDate,
					"date_updated":            activityDate,
					"custom.cf_result":        "Erreicht",
				},
			})
		default:
			t.Fatalf("unexpected close request: %s", r.URL.Path)
		}
	}))
}

func calendlyOrchestratorStub(t *testing.T, eventStart time.Time) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"resource": map[string]string{"current_organization": srv.URL + "/organizations/org_1"},
			})
		case "/organization_memberships":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{"user": map[string]string{"uri": srv.URL + "/users/user_1", "name": "Lukas Brandt", "email": "lukas@advisory.test"}},
				},
				"pagination": map[string]string{},
			})
		case "/scheduled_events":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{
						"uri":        srv.URL + "/scheduled_events/evt_1",
						"name":       "Erstgespräch",
						"status":     "active",
						"start_time": eventStart.Format(time.RFC3339),
						"end_time":   eventStart.Add(time.Hour).Format(time.RFC3339),
					},
				},
				"pagination": map[string]string{},
			})
		case "/scheduled_events/evt_1/invitees":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{"name": "Jane Kunde", "email": "jane@acme.test", "status": "active"},
				},
				"pagination": map[string]string{},
			})
		default:
			t.Fatalf("unexpected calendly request: %s", r.URL.Path)
		}
	}))
	return srv
}

func testDefaults() Defaults {
	return Defaults{
		DaysBack:      90,
		DaysForward:   90,
		CallsDaysBack: 30,
		BatchSize:     50,
		Budget:        time.Minute,
		ActivityTypes: []closeapi.ActivityType{
			{Key: "erstgespraech", TypeID: "actitype_test", ResultField: "cf_result", Name: "Erstgespräch"},
		},
	}
}

func TestSyncFullPass(t *testing.T) {
	eventStart := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	closeSrv := closeStub(t, eventStart.Format("2006-01-02"), eventStart.Add(6*time.Hour).Format(time.RFC3339))
	defer closeSrv.Close()
	calSrv := calendlyOrchestratorStub(t, eventStart)
	defer calSrv.Close()

	db := testDB(t)
	o := NewOrchestrator(db,
		closeapi.New("key", closeSrv.URL, 0),
		calendly.New("token", calSrv.URL),
		testDefaults())

	result, err := o.Sync(context.Background(), Options{Trigger: TriggerManual})
	require.NoError(t, err)
	assert.False(t, result.Partial)

	assert.Equal(t, 1, result.Resources["users"].Synced)
	assert.Equal(t, 1, result.Resources["leads"].Synced)
	assert.Equal(t, 1, result.Resources["calls"].Synced)
	assert.Equal(t, 1, result.Resources["appointments"].Synced)
	assert.Equal(t, 1, result.Resources["events"].Synced)
	assert.Equal(t, 1, result.Resources["activities"].Synced)
	assert.Equal(t, 1, result.Matching.Matched)

	// The call got its outcome name and resolved references.
	var call models.Call
	require.NoError(t, db.First(&call, "close_call_id = ?", "call_1").Error)
	assert.Equal(t, "Erreicht", call.Disposition)
	assert.Equal(t, "inbound", call.Direction)
	require.NotNil(t, call.LeadID)

	// The lead's meeting field became a planned appointment.
	var appointment models.Appointment
	require.NoError(t, db.First(&appointment, "lead_id = ?", call.LeadID).Error)
	assert.Equal(t, models.AppointmentErstgespraech, appointment.Type)

	// The run was persisted and closed.
	latest, err := NewStore(db).LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.NotNil(t, latest.FinishedAt)
	assert.False(t, latest.Partial)

	// A second pass is fully idempotent: the unchanged activity is skipped.
	result, err = o.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Resources["activities"].Synced)
	assert.Equal(t, 1, result.Resources["activities"].Skipped)
	assert.Zero(t, result.Resources["events"].Deleted)
}

func TestSyncBudgetExhaustedMarksPartial(t *testing.T) {
	db := testDB(t)
	o := NewOrchestrator(db,
		closeapi.New("key", "http://127.0.0.1:0", 0),
		calendly.New("token", "http://127.0.0.1:0"),
		testDefaults())

	result, err := o.Sync(context.Background(), Options{Budget: time.Nanosecond})
	require.NoError(t, err)
	assert.True(t, result.Partial)
	for name, res := range result.Resources {
		assert.True(t, res.Partial, "resource %s must be partial", name)
		assert.Zero(t, res.Deleted, "partial run must not delete, resource %s", name)
	}
	assert.Zero(t, result.Matching.Matched)

	latest, err := NewStore(db).LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Partial)
}

func TestSyncRejectsConcurrentRuns(t *testing.T) {
	db := testDB(t)
	o := NewOrchestrator(db,
		closeapi.New("", "", 0),
		calendly.New("", ""),
		testDefaults())

	o.mu.Lock()
	defer o.mu.Unlock()

	_, err := o.Sync(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrSyncAlreadyRunning)
}

func TestSyncEventDeletionAfterUpstreamRemoval(t *testing.T) {
	eventStart := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	calSrv := calendlyOrchestratorStub(t, eventStart)
	defer calSrv.Close()
	closeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}, "has_more": false})
	}))
	defer closeSrv.Close()

	db := testDB(t)
	store := NewStore(db)

	// A stale local event inside the window that upstream no longer returns.
	_, _, err := store.UpsertEvent(EventRecord{
		URI:       "https://api.calendly.test/scheduled_events/evt_stale",
		StartTime: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	o := NewOrchestrator(db,
		closeapi.New("key", closeSrv.URL, 0),
		calendly.New("token", calSrv.URL),
		testDefaults())

	result, err := o.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Resources["events"].Deleted)

	var count int64
	db.Model(&models.SchedulingEvent{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestSyncKeepsEventsWhenMemberFetchFails(t *testing.T) {
	var calSrv *httptest.Server
	calSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"resource": map[string]string{"current_organization": calSrv.URL + "/organizations/org_1"},
			})
		case "/organization_memberships":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{"user": map[string]string{"uri": calSrv.URL + "/users/user_1", "name": "Lukas Brandt", "email": "lukas@advisory.test"}},
				},
				"pagination": map[string]string{},
			})
		case "/scheduled_events":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			t.Fatalf("unexpected calendly request: %s", r.URL.Path)
		}
	}))
	defer calSrv.Close()
	closeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}, "has_more": false})
	}))
	defer closeSrv.Close()

	db := testDB(t)
	store := NewStore(db)

	// This member's calendar is down, so its events are unknown, not absent.
	_, _, err := store.UpsertEvent(EventRecord{
		URI:       "https://api.calendly.test/scheduled_events/evt_live",
		StartTime: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	o := NewOrchestrator(db,
		closeapi.New("key", closeSrv.URL, 0),
		calendly.New("token", calSrv.URL),
		testDefaults())

	result, err := o.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Resources["events"].Partial)
	assert.Zero(t, result.Resources["events"].Deleted)

	var count int64
	db.Model(&models.SchedulingEvent{}).Count(&count)
	assert.EqualValues(t, 1, count)
}
