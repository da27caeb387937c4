package calendly

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	c := New("token", baseURL)
	c.pace = 0
	return c
}

func calendlyStub(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		switch {
		case r.URL.Path == "/users/me":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"resource": map[string]string{
					"uri":                  srv.URL + "/users/me_user",
					"current_organization": srv.URL + "/organizations/org_1",
				},
			})
		case r.URL.Path == "/organization_memberships":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{"user": map[string]string{
						"uri":   srv.URL + "/users/user_1",
						"name":  "Lukas Brandt",
						"email": "lukas@advisory.test",
					}},
				},
				"pagination": map[string]string{},
			})
		case r.URL.Path == "/scheduled_events":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{
						"uri":        srv.URL + "/scheduled_events/evt_1",
						"name":       "Erstgespräch",
						"status":     "active",
						"start_time": "2026-09-03T10:00:00Z",
						"end_time":   "2026-09-03T11:00:00Z",
					},
				},
				"pagination": map[string]string{},
			})
		case r.URL.Path == "/scheduled_events/evt_1/invitees":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{"name": "Jane Kunde", "email": "jane@acme.test", "status": "active"},
				},
				"pagination": map[string]string{},
			})
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	}))
	return srv
}

func TestAllEventsWithDetails(t *testing.T) {
	srv := calendlyStub(t)
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, complete, err := c.AllEventsWithDetails(context.Background(), 30, 30)
	require.NoError(t, err)
	assert.True(t, complete)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "Erstgespräch", e.Name)
	assert.Equal(t, "Lukas Brandt", e.HostName)
	assert.Equal(t, "lukas@advisory.test", e.HostEmail)
	require.Len(t, e.Invitees, 1)
	assert.Equal(t, "jane@acme.test", e.Invitees[0].Email)
}

func TestScheduledEventsCursorPagination(t *testing.T) {
	var srv *httptest.Server
	page := 0
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		if page == 1 {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{"uri": "https://api.calendly.test/scheduled_events/evt_1", "name": "A"},
				},
				"pagination": map[string]string{"next_page": srv.URL + "/scheduled_events?page=2"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"collection": []map[string]interface{}{
				{"uri": "https://api.calendly.test/scheduled_events/evt_2", "name": "B"},
			},
			"pagination": map[string]string{},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.ScheduledEvents(context.Background(), "org", "user", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 2, page)
}

func TestRateLimitedRequestRetriedOnce(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"resource": map[string]string{"current_organization": "org_1"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	uri, err := c.OrganizationURI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "org_1", uri)
	assert.Equal(t, 2, requests)
}

func TestAllEventsWithDetailsFailedMemberMarksIncomplete(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users/me":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"resource": map[string]string{
					"uri":                  srv.URL + "/users/me_user",
					"current_organization": srv.URL + "/organizations/org_1",
				},
			})
		case r.URL.Path == "/organization_memberships":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{"user": map[string]string{
						"uri":   srv.URL + "/users/user_down",
						"name":  "Broken Calendar",
						"email": "broken@advisory.test",
					}},
					{"user": map[string]string{
						"uri":   srv.URL + "/users/user_ok",
						"name":  "Lukas Brandt",
						"email": "lukas@advisory.test",
					}},
				},
				"pagination": map[string]string{},
			})
		case r.URL.Path == "/scheduled_events" && r.URL.Query().Get("user") == srv.URL+"/users/user_down":
			// First member's calendar keeps failing. Retry gives up on 5xx
			// immediately, so the second member is still fetched.
			w.WriteHeader(http.StatusInternalServerError)
		case r.URL.Path == "/scheduled_events":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{
					{
						"uri":        srv.URL + "/scheduled_events/evt_ok",
						"name":       "Erstgespräch",
						"status":     "active",
						"start_time": "2026-09-03T10:00:00Z",
						"end_time":   "2026-09-03T11:00:00Z",
					},
				},
				"pagination": map[string]string{},
			})
		case r.URL.Path == "/scheduled_events/evt_ok/invitees":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"collection": []map[string]interface{}{},
				"pagination": map[string]string{},
			})
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, complete, err := c.AllEventsWithDetails(context.Background(), 30, 30)
	require.NoError(t, err)
	assert.False(t, complete)
	require.Len(t, events, 1)
	assert.Equal(t, "Lukas Brandt", events[0].HostName)
}

func TestNotConfigured(t *testing.T) {
	c := New("", "http://localhost")
	_, _, err := c.AllEventsWithDetails(context.Background(), 30, 30)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEventURITail(t *testing.T) {
	assert.Equal(t, "evt_1", EventURITail("https://api.calendly.com/scheduled_events/evt_1"))
	assert.Equal(t, "bare", EventURITail("bare"))
}
