package relay

import (
	"fmt"
	"time"

	"rtdrelay/internal/domain"
)

// TopicStats summarizes the subscription table.
type TopicStats struct {
	Total         int
	UniqueSymbols int
	UniqueFields  int
}

// State returns the current connection state.
func (c *Client) State() domain.ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// IsConnected reports whether the client holds a live session.
func (c *Client) IsConnected() bool {
	return c.State() == domain.StateConnected
}

// TopicCount returns the number of acknowledged subscriptions.
func (c *Client) TopicCount() int {
	c.topicMu.Lock()
	defer c.topicMu.Unlock()
	return len(c.topics)
}

// UpdateCount returns how many notifications the provider has delivered.
func (c *Client) UpdateCount() int64 {
	return c.updateCount.Load()
}

// LastRefresh returns the time of the last refresh pull; zero if none yet.
func (c *Client) LastRefresh() time.Time {
	ns := c.lastRefresh.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// TimeSinceRefresh reports how long ago the last refresh pull ran. ok is
// false when no refresh has happened yet.
func (c *Client) TimeSinceRefresh() (time.Duration, bool) {
	last := c.LastRefresh()
	if last.IsZero() {
		return 0, false
	}
	return time.Since(last), true
}

// Subscriptions lists every acknowledged (field, symbol) pair.
func (c *Client) Subscriptions() []Pair {
	c.topicMu.Lock()
	defer c.topicMu.Unlock()
	out := make([]Pair, 0, len(c.topics))
	for _, e := range c.topics {
		out = append(out, Pair{Field: e.Field, Symbol: e.Symbol})
	}
	return out
}

// IsSubscribed reports whether the pair is in the acknowledged table.
func (c *Client) IsSubscribed(field domain.FieldKind, symbol string) bool {
	id := domain.TopicID(field, symbol)
	c.topicMu.Lock()
	defer c.topicMu.Unlock()
	cur, ok := c.topics[id]
	return ok && cur.Symbol == symbol && cur.Field == field
}

// Stats summarizes the subscription table.
func (c *Client) Stats() TopicStats {
	c.topicMu.Lock()
	defer c.topicMu.Unlock()

	symbols := make(map[string]struct{})
	fields := make(map[domain.FieldKind]struct{})
	for _, e := range c.topics {
		symbols[e.Symbol] = struct{}{}
		fields[e.Field] = struct{}{}
	}
	return TopicStats{
		Total:         len(c.topics),
		UniqueSymbols: len(symbols),
		UniqueFields:  len(fields),
	}
}

// Health returns a read-only view of session vitals for logging and probes.
func (c *Client) Health() map[string]any {
	var sinceRefresh float64 = -1
	if d, ok := c.TimeSinceRefresh(); ok {
		sinceRefresh = d.Seconds()
	}
	return map[string]any{
		"connection_state":      c.State().String(),
		"heartbeat_interval":    c.HeartbeatInterval().String(),
		"seconds_since_refresh": sinceRefresh,
		"topic_count":           c.TopicCount(),
		"update_count":          c.UpdateCount(),
	}
}

// String gives a one-line client summary.
func (c *Client) String() string {
	return fmt.Sprintf("relay.Client: %s, topics: %d, updates: %d",
		c.State(), c.TopicCount(), c.UpdateCount())
}
