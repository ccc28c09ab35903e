package relay

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"rtdrelay/internal/application/port"
	"rtdrelay/internal/domain"
)

// Pair is one (field, symbol) subscription unit.
type Pair struct {
	Field  domain.FieldKind
	Symbol string
}

type topicEntry struct {
	Symbol string
	Field  domain.FieldKind
}

// Client owns one provider session: the connection state machine, the
// subscription table and the latest-value cache. All methods are safe for
// concurrent use; the provider's async notification and the owning worker's
// calls may arrive at the same time.
type Client struct {
	opts     Options
	provider port.Provider

	stateMu sync.Mutex
	state   domain.ConnState

	hbMu       sync.Mutex
	hbInterval time.Duration

	topicMu sync.Mutex
	topics  map[int]topicEntry

	valueMu sync.Mutex
	latest  map[domain.QuoteKey]domain.Quote

	updateCount atomic.Int64
	lastRefresh atomic.Int64 // unix nanos, 0 = never refreshed
}

// New builds a disconnected client around the given provider. The options
// value is copied; the client never mutates shared configuration.
func New(provider port.Provider, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts:       opts,
		provider:   provider,
		state:      domain.StateDisconnected,
		hbInterval: opts.InitialHeartbeat,
		topics:     make(map[int]topicEntry),
		latest:     make(map[domain.QuoteKey]domain.Quote),
	}
}

// Initialize performs the provider handshake. Legal only while Disconnected.
// On success the heartbeat interval drops from its elevated startup value to
// the steady-state value; on failure the client reverts to Disconnected and
// releases whatever the provider had partially acquired.
func (c *Client) Initialize() error {
	c.stateMu.Lock()
	if c.state != domain.StateDisconnected {
		cur := c.state
		c.stateMu.Unlock()
		return newStateError("initialize", cur, domain.StateDisconnected)
	}
	c.state = domain.StateConnecting
	c.stateMu.Unlock()

	log.Info().Msg("starting provider session")

	if err := c.provider.Start(func() { c.UpdateNotify() }); err != nil {
		c.setState(domain.StateDisconnected)
		if terr := c.provider.Terminate(); terr != nil {
			log.Debug().Err(terr).Msg("terminate after failed handshake")
		}
		log.Error().Err(err).Msg("provider handshake rejected")
		return &ConnectionError{Op: "initialize", Err: err}
	}

	c.setState(domain.StateConnected)

	prev := c.HeartbeatInterval()
	c.setHeartbeatInterval(c.opts.SteadyHeartbeat)
	log.Info().
		Dur("from", prev).
		Dur("to", c.opts.SteadyHeartbeat).
		Msg("session connected, heartbeat interval lowered")
	return nil
}

// Subscribe starts streaming one (field, symbol) topic. The returned id is
// deterministic for the pair; re-subscribing an active pair is a no-op that
// returns the existing id without a provider call. ok is false when the
// provider refuses the topic, which is not an error.
func (c *Client) Subscribe(field domain.FieldKind, symbol string) (id int, ok bool, err error) {
	if err := c.requireState("subscribe", domain.StateConnected); err != nil {
		if errors.Is(err, ErrShuttingDown) {
			return 0, false, nil
		}
		return 0, false, err
	}

	id = domain.TopicID(field, symbol)

	c.topicMu.Lock()
	if cur, active := c.topics[id]; active && cur.Symbol == symbol && cur.Field == field {
		c.topicMu.Unlock()
		log.Debug().Str("symbol", symbol).Str("field", string(field)).Msg("already subscribed")
		return id, true, nil
	}
	c.topicMu.Unlock()

	// The provider call happens outside the topic lock. The id is a pure
	// function of the pair, so a racing duplicate lands on the same topic and
	// the commit below is idempotent.
	accepted, err := c.provider.ConnectData(id, string(field), symbol)
	if err != nil {
		return 0, false, &ClientError{Op: "subscribe", Symbol: symbol, Field: field, Err: err}
	}
	if !accepted {
		log.Warn().Str("symbol", symbol).Str("field", string(field)).Msg("subscription refused by provider")
		return 0, false, nil
	}

	c.topicMu.Lock()
	c.topics[id] = topicEntry{Symbol: symbol, Field: field}
	c.topicMu.Unlock()

	log.Debug().Str("symbol", symbol).Str("field", string(field)).Int("topic", id).Msg("subscribed")
	return id, true, nil
}

// Unsubscribe stops streaming one topic. Returns false when the pair was not
// subscribed or the provider refused; the table entry is removed only on
// success.
func (c *Client) Unsubscribe(field domain.FieldKind, symbol string) (bool, error) {
	if err := c.requireState("unsubscribe", domain.StateConnected, domain.StateDisconnecting); err != nil {
		if errors.Is(err, ErrShuttingDown) {
			return false, nil
		}
		return false, err
	}

	id := domain.TopicID(field, symbol)

	c.topicMu.Lock()
	cur, active := c.topics[id]
	c.topicMu.Unlock()
	if !active || cur.Symbol != symbol || cur.Field != field {
		log.Warn().Str("symbol", symbol).Str("field", string(field)).Msg("not subscribed")
		return false, nil
	}

	if err := c.provider.DisconnectData(id); err != nil {
		return false, &ClientError{Op: "unsubscribe", Symbol: symbol, Field: field, Err: err}
	}

	c.topicMu.Lock()
	delete(c.topics, id)
	c.topicMu.Unlock()

	log.Debug().Str("symbol", symbol).Str("field", string(field)).Int("topic", id).Msg("unsubscribed")
	return true, nil
}

// BatchSubscribe subscribes every pair best-effort: one failure never aborts
// the batch. Returns the per-pair outcome and the success count.
func (c *Client) BatchSubscribe(pairs []Pair) (map[Pair]bool, int) {
	results := make(map[Pair]bool, len(pairs))
	succeeded := 0
	for _, p := range pairs {
		_, ok, err := c.Subscribe(p.Field, p.Symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", p.Symbol).Str("field", string(p.Field)).Msg("batch subscribe item failed")
			ok = false
		}
		results[p] = ok
		if ok {
			succeeded++
		}
	}
	log.Info().Int("succeeded", succeeded).Int("total", len(pairs)).Msg("batch subscribe complete")
	return results, succeeded
}

// BatchUnsubscribe mirrors BatchSubscribe.
func (c *Client) BatchUnsubscribe(pairs []Pair) (map[Pair]bool, int) {
	results := make(map[Pair]bool, len(pairs))
	succeeded := 0
	for _, p := range pairs {
		ok, err := c.Unsubscribe(p.Field, p.Symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", p.Symbol).Str("field", string(p.Field)).Msg("batch unsubscribe item failed")
			ok = false
		}
		results[p] = ok
		if ok {
			succeeded++
		}
	}
	log.Info().Int("succeeded", succeeded).Int("total", len(pairs)).Msg("batch unsubscribe complete")
	return results, succeeded
}

// UpdateNotify is the provider's data-ready callback. It may fire at any
// moment, including while a teardown is in flight; outside the Connected
// state it is absorbed rather than surfaced, a transient race must not tear
// down a healthy session.
func (c *Client) UpdateNotify() bool {
	if err := c.requireState("update_notify", domain.StateConnected); err != nil {
		if !errors.Is(err, ErrShuttingDown) {
			log.Warn().Err(err).Msg("notification ignored")
		}
		return false
	}
	n := c.updateCount.Add(1)
	log.Debug().Int64("count", n).Msg("update notify")
	return c.RefreshTopics()
}

// RefreshTopics pulls the changed-topic batch and folds it into the cache.
// Any provider hiccup or malformed batch is logged and treated as "no update
// this cycle". The return value reflects the refresh mechanics, not whether
// any value changed.
func (c *Client) RefreshTopics() bool {
	if err := c.requireState("refresh_topics", domain.StateConnected); err != nil {
		if !errors.Is(err, ErrShuttingDown) {
			log.Warn().Err(err).Msg("refresh skipped")
		}
		return false
	}

	updates, err := c.provider.RefreshData()
	c.lastRefresh.Store(time.Now().UnixNano())
	if err != nil {
		log.Warn().Err(&UpdateError{Op: "refresh_topics", Err: err}).Msg("refresh failed, no update this cycle")
		return false
	}
	if len(updates) == 0 {
		log.Debug().Msg("no new data in this update")
		return true
	}

	now := time.Now()

	c.topicMu.Lock()
	quotes := make([]domain.Quote, 0, len(updates))
	for _, u := range updates {
		entry, known := c.topics[u.TopicID]
		if !known {
			log.Debug().Int("topic", u.TopicID).Msg("update for unknown topic dropped")
			continue
		}
		q := domain.NewQuote(entry.Field, entry.Symbol, u.Raw, now)
		if !q.Has {
			log.Debug().Str("symbol", entry.Symbol).Str("field", string(entry.Field)).Msg("absent value skipped")
			continue
		}
		quotes = append(quotes, q)
	}
	c.topicMu.Unlock()

	c.valueMu.Lock()
	for _, q := range quotes {
		c.latest[q.Key()] = q
	}
	c.valueMu.Unlock()

	log.Debug().Int("topics", len(quotes)).Msg("cache refreshed")
	return true
}

// CheckHeartbeat probes provider liveness. While Disconnected it returns a
// neutral negative result instead of raising; that probe is how supervisors
// discover a dead session in the first place.
func (c *Client) CheckHeartbeat() (bool, error) {
	c.stateMu.Lock()
	cur := c.state
	c.stateMu.Unlock()

	switch cur {
	case domain.StateDisconnected:
		log.Debug().Msg("heartbeat skipped while disconnected")
		return false, nil
	case domain.StateDisconnecting:
		return false, nil
	case domain.StateConnecting:
		return false, newStateError("check_heartbeat", cur, domain.StateConnected, domain.StateDisconnected)
	}

	healthy, err := c.provider.Heartbeat()
	if err != nil {
		return false, &HeartbeatError{Err: err}
	}
	if !healthy {
		log.Warn().Msg("unhealthy heartbeat response")
	}
	return healthy, nil
}

// Disconnect runs the teardown sequence: best-effort unsubscribe of every
// active topic, table and cache cleared, provider session terminated. Safe to
// call any number of times; racing calls while a teardown is in flight are
// silent no-ops.
func (c *Client) Disconnect() {
	c.stateMu.Lock()
	switch c.state {
	case domain.StateDisconnected:
		c.stateMu.Unlock()
		log.Debug().Msg("already disconnected")
		return
	case domain.StateDisconnecting:
		c.stateMu.Unlock()
		log.Debug().Msg("disconnect already in progress")
		return
	}
	c.state = domain.StateDisconnecting
	c.stateMu.Unlock()

	log.Info().Msg("starting disconnect sequence")

	if pairs := c.Subscriptions(); len(pairs) > 0 {
		_, n := c.BatchUnsubscribe(pairs)
		log.Info().Int("released", n).Int("total", len(pairs)).Msg("topics released")
	}

	c.topicMu.Lock()
	c.topics = make(map[int]topicEntry)
	c.topicMu.Unlock()

	c.valueMu.Lock()
	c.latest = make(map[domain.QuoteKey]domain.Quote)
	c.valueMu.Unlock()

	if err := c.provider.Terminate(); err != nil {
		log.Error().Err(err).Msg("provider terminate failed")
	}

	c.setState(domain.StateDisconnected)
	log.Info().Msg("disconnect complete")
}

// LatestValues returns a consistent point-in-time copy of the cache.
func (c *Client) LatestValues() map[domain.QuoteKey]domain.Quote {
	c.valueMu.Lock()
	defer c.valueMu.Unlock()
	out := make(map[domain.QuoteKey]domain.Quote, len(c.latest))
	for k, v := range c.latest {
		out[k] = v
	}
	return out
}

// HeartbeatInterval returns the current probe interval.
func (c *Client) HeartbeatInterval() time.Duration {
	c.hbMu.Lock()
	defer c.hbMu.Unlock()
	return c.hbInterval
}

// SetHeartbeatInterval overrides the probe interval. Must be positive.
func (c *Client) SetHeartbeatInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", d)
	}
	c.setHeartbeatInterval(d)
	return nil
}

func (c *Client) setHeartbeatInterval(d time.Duration) {
	c.hbMu.Lock()
	c.hbInterval = d
	c.hbMu.Unlock()
}

func (c *Client) setState(s domain.ConnState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// requireState fails fast when op is not legal in the current state, with one
// carve-out: a client that is Disconnecting absorbs the call (ErrShuttingDown)
// instead of raising, shutdown races are expected.
func (c *Client) requireState(op string, allowed ...domain.ConnState) error {
	c.stateMu.Lock()
	cur := c.state
	c.stateMu.Unlock()

	for _, s := range allowed {
		if cur == s {
			return nil
		}
	}
	if cur == domain.StateDisconnecting {
		log.Debug().Str("op", op).Msg("call absorbed during shutdown")
		return ErrShuttingDown
	}
	return newStateError(op, cur, allowed...)
}
