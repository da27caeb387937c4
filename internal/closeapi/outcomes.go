package closeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// OutcomeCache lazily loads the upstream outcome id -> name lookup table once
// per process. It is owned by the client and shared by reference; the only
// invalidation is a process restart.
type OutcomeCache struct {
	mu     sync.Mutex
	loaded bool
	names  map[string]string
}

func NewOutcomeCache() *OutcomeCache {
	return &OutcomeCache{}
}

func (o *OutcomeCache) Get(ctx context.Context, c *Client) (map[string]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.loaded {
		return o.names, nil
	}

	raw, err := c.fetchAll(ctx, "/outcome/", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching outcomes: %w", err)
	}

	names := make(map[string]string, len(raw))
	for _, r := range raw {
		var out outcome
		if err := json.Unmarshal(r, &out); err != nil {
			continue
		}
		if out.ID != "" && out.Name != "" {
			names[out.ID] = out.Name
		}
	}

	o.names = names
	o.loaded = true
	return o.names, nil
}
