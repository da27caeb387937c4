package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukasbrandt/advisory-backend/internal/models"
)

func TestMatchActivitiesSameDayScoresFull(t *testing.T) {
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	matches, evaluated := MatchActivities(
		[]MatchActivity{{ID: "a1", LeadEmail: "jane@acme.test", DateCreated: at}},
		[]MatchEvent{{ID: "e1", InviteeEmail: "JANE@ACME.TEST", StartTime: at}},
	)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, evaluated)
	assert.Equal(t, "e1", matches[0].EventID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "email match, 0.0 days difference", matches[0].Reason)
}

func TestMatchActivitiesThreshold(t *testing.T) {
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	// Two days apart scores 1/3 and is rejected.
	matches, _ := MatchActivities(
		[]MatchActivity{{ID: "a1", LeadEmail: "jane@acme.test", DateCreated: at}},
		[]MatchEvent{{ID: "e1", InviteeEmail: "jane@acme.test", StartTime: at.AddDate(0, 0, -2)}},
	)
	assert.Empty(t, matches)

	// One day apart scores 2/3 and is accepted.
	matches, _ = MatchActivities(
		[]MatchActivity{{ID: "a1", LeadEmail: "jane@acme.test", DateCreated: at}},
		[]MatchEvent{{ID: "e1", InviteeEmail: "jane@acme.test", StartTime: at.AddDate(0, 0, -1)}},
	)
	require.Len(t, matches, 1)
	assert.InDelta(t, 2.0/3.0, matches[0].Score, 1e-9)
}

func TestMatchActivitiesOutsideWindow(t *testing.T) {
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	matches, _ := MatchActivities(
		[]MatchActivity{{ID: "a1", LeadEmail: "jane@acme.test", DateCreated: at}},
		[]MatchEvent{{ID: "e1", InviteeEmail: "jane@acme.test", StartTime: at.AddDate(0, 0, -5)}},
	)
	assert.Empty(t, matches)
}

func TestMatchActivitiesEmailMustMatch(t *testing.T) {
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	matches, evaluated := MatchActivities(
		[]MatchActivity{{ID: "a1", LeadEmail: "jane@acme.test", DateCreated: at}},
		[]MatchEvent{{ID: "e1", InviteeEmail: "john@acme.test", StartTime: at}},
	)
	assert.Empty(t, matches)
	assert.Zero(t, evaluated)
}

func TestMatchActivitiesGreedyClaim(t *testing.T) {
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	// Both activities want e1; the first to run claims it, the second falls
	// back to the weaker e2.
	matches, _ := MatchActivities(
		[]MatchActivity{
			{ID: "a1", LeadEmail: "jane@acme.test", DateCreated: at},
			{ID: "a2", LeadEmail: "jane@acme.test", DateCreated: at},
		},
		[]MatchEvent{
			{ID: "e1", InviteeEmail: "jane@acme.test", StartTime: at},
			{ID: "e2", InviteeEmail: "jane@acme.test", StartTime: at.AddDate(0, 0, 1)},
		},
	)
	require.Len(t, matches, 2)
	assert.Equal(t, "e1", matches[0].EventID)
	assert.Equal(t, "e2", matches[1].EventID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMatchActivitiesPicksClosestEvent(t *testing.T) {
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	matches, _ := MatchActivities(
		[]MatchActivity{{ID: "a1", LeadEmail: "jane@acme.test", DateCreated: at}},
		[]MatchEvent{
			{ID: "far", InviteeEmail: "jane@acme.test", StartTime: at.AddDate(0, 0, 1)},
			{ID: "near", InviteeEmail: "jane@acme.test", StartTime: at.Add(2 * time.Hour)},
		},
	)
	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].EventID)
}

func TestMatcherRunPersistsLinks(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	matcher := NewMatcher(db)

	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	_, _, err := store.UpsertLead(LeadRecord{CloseLeadID: "lead_1", Email: "jane@acme.test"})
	require.NoError(t, err)
	_, _, err = store.UpsertEvent(EventRecord{
		URI:          "https://api.calendly.test/scheduled_events/evt_1",
		InviteeEmail: "jane@acme.test",
		StartTime:    at,
	})
	require.NoError(t, err)
	_, _, err = store.UpsertActivity(ActivityRecord{
		CloseActivityID: "acti_1",
		ActivityType:    "erstgespraech",
		LeadCloseID:     "lead_1",
		DateCreated:     at.Add(6 * time.Hour),
		DateUpdated:     at.Add(6 * time.Hour),
	})
	require.NoError(t, err)

	summary, err := matcher.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.CandidatesEvaluated)

	var activity models.CustomActivity
	require.NoError(t, db.First(&activity, "id = ?", "ca_acti_1").Error)
	require.NotNil(t, activity.CalendlyEventID)
	assert.Equal(t, "cal_evt_1", *activity.CalendlyEventID)
	require.NotNil(t, activity.MatchConfidence)
	assert.Greater(t, *activity.MatchConfidence, 0.5)
	assert.NotNil(t, activity.MatchedAt)

	var audits []models.ActivityMatch
	require.NoError(t, db.Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Equal(t, "ca_acti_1", audits[0].ActivityID)

	// A second pass finds nothing left to match and leaves the link alone.
	summary, err = matcher.Run()
	require.NoError(t, err)
	assert.Zero(t, summary.Matched)
}

func TestMatcherRunSkipsClaimedEvents(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	matcher := NewMatcher(db)

	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	_, _, err := store.UpsertEvent(EventRecord{
		URI:          "https://api.calendly.test/scheduled_events/evt_1",
		InviteeEmail: "jane@acme.test",
		StartTime:    at,
	})
	require.NoError(t, err)
	_, _, err = store.UpsertActivity(ActivityRecord{
		CloseActivityID: "acti_1",
		LeadCloseID:     "lead_x",
		DateCreated:     at,
		DateUpdated:     at,
	})
	require.NoError(t, err)
	// Give the activity a lead email directly; its lead was never synced.
	email := "jane@acme.test"
	require.NoError(t, db.Model(&models.CustomActivity{}).
		Where("id = ?", "ca_acti_1").Update("lead_email", &email).Error)

	_, err = matcher.Run()
	require.NoError(t, err)

	// A new activity for the same email cannot steal the claimed event.
	_, _, err = store.UpsertActivity(ActivityRecord{
		CloseActivityID: "acti_2",
		LeadCloseID:     "lead_x",
		DateCreated:     at,
		DateUpdated:     at,
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.CustomActivity{}).
		Where("id = ?", "ca_acti_2").Update("lead_email", &email).Error)

	summary, err := matcher.Run()
	require.NoError(t, err)
	assert.Zero(t, summary.Matched)
}
