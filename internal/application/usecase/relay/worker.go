package relay

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rtdrelay/internal/application/port"
	"rtdrelay/internal/domain"
)

// WorkerDeps carries everything a worker needs from the outside: the sink is
// injected, never created internally, and each session gets a fresh provider
// from the factory.
type WorkerDeps struct {
	NewProvider func() port.Provider
	Sink        port.Sink
	Options     Options
}

// Worker drives exactly one client through a full session from one dedicated
// goroutine. The automation model requires call affinity: the goroutine that
// runs Start owns the session loop, and the worker never hands its client to
// another loop. SubscribeAdditionalSymbols is the one cross-goroutine entry
// point and touches the client only through its own locked methods.
type Worker struct {
	deps WorkerDeps

	mu      sync.Mutex
	client  *Client
	session string
}

func NewWorker(deps WorkerDeps) *Worker {
	deps.Options = deps.Options.withDefaults()
	return &Worker{deps: deps}
}

// Start runs a full session: teardown of any previous client, handshake,
// batched subscription with retry, then the snapshot loop until ctx is done.
// Every exit path runs cleanup exactly once, and no failure escapes as a
// panic; the sink only ever sees snapshots, one error message, or status
// lines.
func (w *Worker) Start(ctx context.Context, symbols []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("worker run panicked")
			_ = w.deps.Sink.Publish(port.ErrorMessage(fmt.Sprintf("relay worker: %v", r)))
		}
		w.cleanup()
		log.Debug().Msg("worker cleanup complete")
	}()

	if err := w.run(ctx, symbols); err != nil {
		log.Error().Err(err).Msg("relay session failed")
		_ = w.deps.Sink.Publish(port.ErrorMessage(err.Error()))
	}
}

func (w *Worker) run(ctx context.Context, symbols []string) error {
	// At most one active session per worker instance.
	if w.currentClient() != nil {
		log.Info().Msg("cleaning up previous session")
		w.cleanup()
	}

	session := uuid.NewString()[:8]
	w.mu.Lock()
	w.session = session
	w.mu.Unlock()

	log.Info().Str("session", session).Strs("symbols", symbols).Msg("starting relay session")

	client := New(w.deps.NewProvider(), w.deps.Options)
	if err := client.Initialize(); err != nil {
		return err
	}

	w.mu.Lock()
	w.client = client
	w.mu.Unlock()

	if len(symbols) == 0 {
		log.Warn().Msg("no symbols supplied")
		_ = w.deps.Sink.Publish(port.StatusMessage("no symbols supplied"))
		return nil
	}

	if err := w.subscribeAll(client, symbols); err != nil {
		return err
	}

	// Let fresh subscriptions settle before the first snapshot.
	sleepCtx(ctx, w.deps.Options.SettleDelay)

	return w.poll(ctx, client)
}

// subscribeAll subscribes the whole symbol list with bounded per-topic
// retries. Hard failures accumulate into one aggregated error; the worker
// stops rather than run a partially subscribed session.
func (w *Worker) subscribeAll(client *Client, symbols []string) error {
	pairs := SubscriptionPlan(symbols, w.deps.Options.DerivativeFields)

	var failures []string
	subscribed := 0
	for _, p := range pairs {
		ok, err := w.subscribePair(client, p)
		if err != nil {
			failures = append(failures, fmt.Sprintf(
				"failed to subscribe to %s %s after %d attempts: %v",
				p.Symbol, p.Field, w.deps.Options.RetryAttempts, err))
			continue
		}
		if ok {
			subscribed++
		}
	}

	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "\n"))
	}

	log.Info().Int("topics", subscribed).Int("planned", len(pairs)).Msg("subscriptions established")
	return nil
}

// subscribePair retries a single subscription up to RetryAttempts. A provider
// refusal (ok=false, no error) is terminal and not retried: the symbol is
// legitimately non-streamable.
func (w *Worker) subscribePair(client *Client, p Pair) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= w.deps.Options.RetryAttempts; attempt++ {
		_, ok, err := client.Subscribe(p.Field, p.Symbol)
		if err == nil {
			return ok, nil
		}
		lastErr = err
		log.Warn().Err(err).
			Str("symbol", p.Symbol).
			Str("field", string(p.Field)).
			Int("attempt", attempt).
			Msg("subscribe attempt failed")
		if attempt < w.deps.Options.RetryAttempts {
			time.Sleep(w.deps.Options.RetryDelay)
		}
	}
	return false, lastErr
}

// poll snapshots the cache at most once per UpdateInterval and publishes only
// when the snapshot differs from the last one sent. Each iteration yields for
// PollYield so the loop stays responsive to cancellation.
func (w *Worker) poll(ctx context.Context, client *Client) error {
	log.Info().Str("session", w.sessionID()).Msg("entering snapshot loop")

	ticker := time.NewTicker(w.deps.Options.PollYield)
	defer ticker.Stop()

	var lastSent map[string]float64
	var lastPublish time.Time

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("session", w.sessionID()).Msg("stop signal received")
			return nil

		case now := <-ticker.C:
			if !lastPublish.IsZero() && now.Sub(lastPublish) < w.deps.Options.UpdateInterval {
				continue
			}
			snap := flatten(client.LatestValues())
			if len(snap) == 0 || maps.Equal(snap, lastSent) {
				continue
			}
			_ = w.deps.Sink.Publish(port.SnapshotMessage(snap))
			lastSent = snap
			lastPublish = now
		}
	}
}

// SubscribeAdditionalSymbols extends a live session without reconnecting,
// used once an underlying's price is known and its derivative contracts can
// be computed. Returns how many topics were acknowledged.
func (w *Worker) SubscribeAdditionalSymbols(symbols []string) int {
	client := w.currentClient()
	if client == nil || !client.IsConnected() {
		log.Warn().Msg("no live session, additional symbols ignored")
		return 0
	}

	added := 0
	for _, p := range SubscriptionPlan(symbols, w.deps.Options.DerivativeFields) {
		ok, err := w.subscribePair(client, p)
		if err != nil {
			log.Error().Err(err).Str("symbol", p.Symbol).Msg("additional subscription failed")
			continue
		}
		if ok {
			added++
		}
	}

	log.Info().Str("session", w.sessionID()).Int("added", added).Msg("session extended")
	_ = w.deps.Sink.Publish(port.StatusMessage(fmt.Sprintf("session %s: %d additional topics subscribed", w.sessionID(), added)))
	return added
}

// cleanup tears down the attached client. Idempotent.
func (w *Worker) cleanup() {
	w.mu.Lock()
	client := w.client
	w.client = nil
	w.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
}

func (w *Worker) currentClient() *Client {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.client
}

func (w *Worker) sessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// SubscriptionPlan expands a symbol list into concrete (field, symbol) pairs:
// plain underlyings get last price only, derivative symbols get the
// configured analytics field set.
func SubscriptionPlan(symbols []string, derivativeFields []domain.FieldKind) []Pair {
	pairs := make([]Pair, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		if domain.IsDerivative(sym) {
			for _, f := range derivativeFields {
				pairs = append(pairs, Pair{Field: f, Symbol: sym})
			}
			continue
		}
		pairs = append(pairs, Pair{Field: domain.FieldLast, Symbol: sym})
	}
	return pairs
}

func flatten(latest map[domain.QuoteKey]domain.Quote) map[string]float64 {
	out := make(map[string]float64, len(latest))
	for k, q := range latest {
		out[k.String()] = q.Value
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
