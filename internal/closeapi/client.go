// Package closeapi is a rate-limit-aware, paginated client for the Close CRM
// API. Fetches surface explicit errors; a 429 is retried once after a fixed
// backoff before giving up.
package closeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const pageLimit = 100

// ErrNotConfigured is returned when no API key is present. The orchestrator
// treats it as fatal for CRM resources only.
var ErrNotConfigured = errors.New("close: api key not configured")

type Client struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	fetchCap int
	outcomes *OutcomeCache
}

func New(apiKey, baseURL string, fetchCap int) *Client {
	if fetchCap <= 0 {
		fetchCap = 10000
	}
	return &Client{
		apiKey:   apiKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		fetchCap: fetchCap,
		outcomes: NewOutcomeCache(),
	}
}

func (c *Client) IsConfigured() bool { return c.apiKey != "" }

// getJSON performs one authenticated GET. A 429 response is retried exactly
// once after a constant backoff; any other non-200 surfaces immediately.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	backoff := retry.WithMaxRetries(1, retry.NewConstant(2*time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.apiKey, "")
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
			slog.Warn("close api rate limited, backing off", "path", path)
			return retry.RetryableError(fmt.Errorf("close: rate limited on %s", path))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("close: GET %s returned status %d", path, resp.StatusCode)
		}
		return json.Unmarshal(body, out)
	})
}

// fetchAll pages through a list endpoint until has_more goes false or the
// safety cap is hit.
func (c *Client) fetchAll(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	skip := 0
	for {
		p := url.Values{}
		for k, v := range params {
			p[k] = v
		}
		p.Set("_limit", strconv.Itoa(pageLimit))
		if skip > 0 {
			p.Set("_skip", strconv.Itoa(skip))
		}

		var page listEnvelope
		if err := c.getJSON(ctx, path, p, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)

		if !page.HasMore {
			break
		}
		if len(all) >= c.fetchCap {
			slog.Warn("close fetch cap reached", "path", path, "records", len(all))
			break
		}
		skip += pageLimit
	}
	return all, nil
}

// Users returns all CRM users.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	raw, err := c.fetchAll(ctx, "/user/", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching users: %w", err)
	}
	users := make([]User, 0, len(raw))
	for _, r := range raw {
		var u User
		if err := json.Unmarshal(r, &u); err != nil {
			slog.Warn("skipping malformed user record", "error", err)
			continue
		}
		if u.ID != "" {
			users = append(users, u)
		}
	}
	return users, nil
}

// Leads returns all CRM leads including their custom field maps.
func (c *Client) Leads(ctx context.Context) ([]Lead, error) {
	raw, err := c.fetchAll(ctx, "/lead/", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching leads: %w", err)
	}
	leads := make([]Lead, 0, len(raw))
	for _, r := range raw {
		var l Lead
		if err := json.Unmarshal(r, &l); err != nil {
			slog.Warn("skipping malformed lead record", "error", err)
			continue
		}
		if l.ID != "" {
			leads = append(leads, l)
		}
	}
	return leads, nil
}

// Calls returns call activities created in [from, to]. Bare dates are
// expanded to full day-boundary timestamps before hitting the API.
func (c *Client) Calls(ctx context.Context, from, to string) ([]Call, error) {
	params := url.Values{}
	if from != "" {
		params.Set("date_created__gte", DayStart(from))
	}
	if to != "" {
		params.Set("date_created__lte", DayEnd(to))
	}
	raw, err := c.fetchAll(ctx, "/activity/call/", params)
	if err != nil {
		return nil, fmt.Errorf("fetching calls: %w", err)
	}
	calls := make([]Call, 0, len(raw))
	for _, r := range raw {
		var call Call
		if err := json.Unmarshal(r, &call); err != nil {
			slog.Warn("skipping malformed call record", "error", err)
			continue
		}
		if call.ID != "" {
			calls = append(calls, call)
		}
	}
	return calls, nil
}

// CustomActivities returns custom activities of one type created in
// [from, to]. The activity endpoint does not filter by type server-side, so
// the type filter is applied client-side after the paged fetch.
func (c *Client) CustomActivities(ctx context.Context, typeID, from, to string) ([]Activity, error) {
	params := url.Values{}
	if from != "" {
		params.Set("date_created__gte", DayStart(from))
	}
	if to != "" {
		params.Set("date_created__lte", DayEnd(to))
	}
	raw, err := c.fetchAll(ctx, "/activity/", params)
	if err != nil {
		return nil, fmt.Errorf("fetching activities: %w", err)
	}
	activities := make([]Activity, 0, len(raw))
	for _, r := range raw {
		var a Activity
		if err := json.Unmarshal(r, &a); err != nil {
			slog.Warn("skipping malformed activity record", "error", err)
			continue
		}
		if a.Type != "CustomActivity" {
			continue
		}
		if typeID != "" && a.CustomActivityTypeID != typeID {
			continue
		}
		activities = append(activities, a)
	}
	return activities, nil
}

// Opportunities returns all CRM opportunities.
func (c *Client) Opportunities(ctx context.Context) ([]Opportunity, error) {
	raw, err := c.fetchAll(ctx, "/opportunity/", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching opportunities: %w", err)
	}
	opps := make([]Opportunity, 0, len(raw))
	for _, r := range raw {
		var o Opportunity
		if err := json.Unmarshal(r, &o); err != nil {
			slog.Warn("skipping malformed opportunity record", "error", err)
			continue
		}
		if o.ID != "" {
			opps = append(opps, o)
		}
	}
	return opps, nil
}

// LeadDetail fetches a single lead.
func (c *Client) LeadDetail(ctx context.Context, leadID string) (*Lead, error) {
	var l Lead
	if err := c.getJSON(ctx, "/lead/"+leadID+"/", nil, &l); err != nil {
		return nil, fmt.Errorf("fetching lead %s: %w", leadID, err)
	}
	return &l, nil
}

// UserDetail fetches a single user.
func (c *Client) UserDetail(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "/user/"+userID+"/", nil, &u); err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", userID, err)
	}
	return &u, nil
}

// Outcomes returns the outcome id -> name table through the process-scoped
// cache.
func (c *Client) Outcomes(ctx context.Context) (map[string]string, error) {
	return c.outcomes.Get(ctx, c)
}

// DayStart expands a bare date to the start-of-day timestamp; fully-qualified
// timestamps pass through unchanged. Upstream day-boundary semantics are
// ambiguous for bare dates, so the engine never sends one.
func DayStart(s string) string {
	if strings.Contains(s, "T") {
		return s
	}
	return s + "T00:00:00Z"
}

// DayEnd expands a bare date to the end-of-day timestamp.
func DayEnd(s string) string {
	if strings.Contains(s, "T") {
		return s
	}
	return s + "T23:59:59Z"
}
