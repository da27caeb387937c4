// Package calendly is a cursor-paginated client for the Calendly v2 API. It
// walks organization -> members -> scheduled events -> invitees with request
// pacing, retrying a rate-limited request once after a longer backoff.
package calendly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrNotConfigured is returned when no API token is present. Fatal for the
// scheduling resource only; other resources still sync.
var ErrNotConfigured = errors.New("calendly: api token not configured")

type Client struct {
	token   string
	baseURL string
	http    *http.Client

	// pace is the delay between consecutive invitee requests; zero in tests.
	pace time.Duration
}

func New(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		pace:    100 * time.Millisecond,
	}
}

func (c *Client) IsConfigured() bool { return c.token != "" }

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	backoff := retry.WithMaxRetries(1, retry.NewConstant(2*time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("calendly rate limited, backing off", "url", rawURL)
			return retry.RetryableError(fmt.Errorf("calendly: rate limited"))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("calendly: GET %s returned status %d", rawURL, resp.StatusCode)
		}
		return json.Unmarshal(body, out)
	})
}

// OrganizationURI resolves the caller's organization.
func (c *Client) OrganizationURI(ctx context.Context) (string, error) {
	var me currentUserResponse
	if err := c.getJSON(ctx, c.baseURL+"/users/me", &me); err != nil {
		return "", fmt.Errorf("fetching current user: %w", err)
	}
	return me.Resource.CurrentOrganization, nil
}

// OrganizationMembers returns all members of the caller's organization.
func (c *Client) OrganizationMembers(ctx context.Context) ([]Membership, error) {
	orgURI, err := c.OrganizationURI(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("organization", orgURI)
	params.Set("count", "100")
	next := c.baseURL + "/organization_memberships?" + params.Encode()

	var members []Membership
	for next != "" {
		var page membershipList
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("fetching organization members: %w", err)
		}
		members = append(members, page.Collection...)
		next = c.resolve(page.Pagination.NextPage)
	}
	return members, nil
}

// ScheduledEvents returns one member's events starting inside the window.
func (c *Client) ScheduledEvents(ctx context.Context, orgURI, userURI string, from, to time.Time) ([]Event, error) {
	params := url.Values{}
	params.Set("organization", orgURI)
	params.Set("user", userURI)
	params.Set("min_start_time", from.UTC().Format(time.RFC3339))
	params.Set("max_start_time", to.UTC().Format(time.RFC3339))
	params.Set("count", "100")
	next := c.baseURL + "/scheduled_events?" + params.Encode()

	var events []Event
	for next != "" {
		var page eventList
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("fetching scheduled events: %w", err)
		}
		events = append(events, page.Collection...)
		next = c.resolve(page.Pagination.NextPage)
	}
	return events, nil
}

// EventInvitees returns the invitees of one event.
func (c *Client) EventInvitees(ctx context.Context, eventURI string) ([]Invitee, error) {
	next := c.baseURL + "/scheduled_events/" + EventURITail(eventURI) + "/invitees?count=100"

	var invitees []Invitee
	for next != "" {
		var page inviteeList
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("fetching invitees: %w", err)
		}
		invitees = append(invitees, page.Collection...)
		next = c.resolve(page.Pagination.NextPage)
	}
	return invitees, nil
}

// AllEventsWithDetails fetches every member's events in the sliding window
// [now-daysBack, now+daysForward] and enriches them with host and invitee
// info. A failing member is skipped so one bad calendar cannot sink the run,
// but the fetch is then reported as incomplete (complete=false) — callers
// must not treat absence from an incomplete fetch as deletion upstream. A
// failing invitee lookup only leaves that event without invitees; the event
// itself was still fetched.
func (c *Client) AllEventsWithDetails(ctx context.Context, daysBack, daysForward int) (events []Event, complete bool, err error) {
	if !c.IsConfigured() {
		return nil, false, ErrNotConfigured
	}

	orgURI, err := c.OrganizationURI(ctx)
	if err != nil {
		return nil, false, err
	}
	members, err := c.OrganizationMembers(ctx)
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	from := now.AddDate(0, 0, -daysBack)
	to := now.AddDate(0, 0, daysForward)

	complete = true
	var all []Event
	for _, m := range members {
		memberEvents, err := c.ScheduledEvents(ctx, orgURI, m.User.URI, from, to)
		if err != nil {
			slog.Error("failed to fetch events for member", "member", m.User.Name, "error", err)
			complete = false
			continue
		}
		for i := range memberEvents {
			memberEvents[i].HostName = m.User.Name
			memberEvents[i].HostEmail = m.User.Email
		}
		all = append(all, memberEvents...)
	}

	for i := range all {
		if err := ctx.Err(); err != nil {
			return all, false, err
		}
		invitees, err := c.EventInvitees(ctx, all[i].URI)
		if err != nil {
			slog.Error("failed to fetch invitees", "event", EventURITail(all[i].URI), "error", err)
			continue
		}
		all[i].Invitees = invitees

		if c.pace > 0 && i < len(all)-1 {
			time.Sleep(c.pace)
		}
	}

	slog.Info("calendly events fetched", "members", len(members), "events", len(all), "complete", complete)
	return all, complete, nil
}

// resolve turns a next_page value into an absolute URL, keeping test servers
// with relative cursors working.
func (c *Client) resolve(next string) string {
	if next == "" {
		return ""
	}
	if strings.HasPrefix(next, "http://") || strings.HasPrefix(next, "https://") {
		return next
	}
	return c.baseURL + next
}

// EventURITail returns the event id segment of an event URI.
func EventURITail(uri string) string {
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}
