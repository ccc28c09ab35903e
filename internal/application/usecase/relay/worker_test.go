package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rtdrelay/internal/application/port"
	"rtdrelay/internal/domain"
)

func newTestWorker(f *fakeProvider) (*Worker, *SnapshotQueue) {
	q := NewSnapshotQueue()
	w := NewWorker(WorkerDeps{
		NewProvider: func() port.Provider { return f },
		Sink:        q,
		Options:     testOptions(),
	})
	return w, q
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func receiveWithin(t *testing.T, q *SnapshotQueue, d time.Duration) port.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	m, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("no message within %v: %v", d, err)
	}
	return m
}

func TestWorker_FirstSnapshotCarriesLastPrice(t *testing.T) {
	f := newFakeProvider()
	w, q := newTestWorker(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx, []string{"SPY"})
	}()

	waitFor(t, "subscription", func() bool { return f.connectCount() > 0 })
	f.stage(domain.FieldLast, "SPY", "512.10")
	f.fire()

	m := receiveWithin(t, q, 2*time.Second)
	if m.Kind != port.KindSnapshot {
		t.Fatalf("first message is not a snapshot: %+v", m)
	}
	if m.Text != "" {
		t.Fatalf("snapshot carries error/status text: %+v", m)
	}
	v, ok := m.Snapshot["SPY:LAST"]
	if !ok || v != 512.10 {
		t.Fatalf("snapshot missing SPY:LAST: %v", m.Snapshot)
	}

	cancel()
	<-done
	if f.terminateCount() != 1 {
		t.Fatalf("cleanup did not disconnect: terminates = %d", f.terminateCount())
	}
}

func TestWorker_SubscriptionFailureAggregatesAndStops(t *testing.T) {
	f := newFakeProvider()
	f.connErr[pairKey("LAST", "ZZZZ")] = errors.New("no such symbol")
	w, q := newTestWorker(f)

	w.Start(context.Background(), []string{"ZZZZ"})

	if q.Len() != 1 {
		t.Fatalf("queue holds %d messages, want exactly 1 error", q.Len())
	}
	m, _ := q.Poll()
	if m.Kind != port.KindError {
		t.Fatalf("want error message, got %+v", m)
	}
	if !strings.Contains(m.Text, "ZZZZ") || !strings.Contains(m.Text, "3 attempts") {
		t.Fatalf("error message lacks context: %q", m.Text)
	}
	if f.connectCount() != 3 {
		t.Fatalf("connect attempts = %d, want 3", f.connectCount())
	}
	if f.terminateCount() != 1 {
		t.Fatalf("cleanup skipped: terminates = %d", f.terminateCount())
	}
}

func TestWorker_IdenticalSnapshotNotRepublished(t *testing.T) {
	f := newFakeProvider()
	w, q := newTestWorker(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx, []string{"SPY"})
	}()
	defer func() { cancel(); <-done }()

	waitFor(t, "subscription", func() bool { return f.connectCount() > 0 })
	f.stage(domain.FieldLast, "SPY", "512.10")
	f.fire()
	receiveWithin(t, q, 2*time.Second)

	// Two further refresh cycles with no value change: nothing new outbound.
	f.fire()
	f.fire()
	time.Sleep(5 * testOptions().UpdateInterval)
	if q.Len() != 0 {
		t.Fatalf("identical snapshot republished: %d pending", q.Len())
	}

	f.stage(domain.FieldLast, "SPY", "513.00")
	f.fire()
	m := receiveWithin(t, q, 2*time.Second)
	if m.Snapshot["SPY:LAST"] != 513.00 {
		t.Fatalf("changed snapshot not delivered: %v", m.Snapshot)
	}
}

func TestWorker_SubscribeAdditionalSymbolsWithoutReconnect(t *testing.T) {
	f := newFakeProvider()
	w, q := newTestWorker(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx, []string{"SPY"})
	}()
	defer func() { cancel(); <-done }()

	waitFor(t, "subscription", func() bool { return f.connectCount() > 0 })
	before := f.connectCount()

	// Derivative contract computed once the underlying price is known.
	added := w.SubscribeAdditionalSymbols([]string{".SPY260320C500"})
	if added != 2 {
		t.Fatalf("added = %d, want gamma + open interest", added)
	}

	f.mu.Lock()
	starts := f.startCalls
	f.mu.Unlock()
	if starts != 1 {
		t.Fatalf("session reconnected: %d handshakes", starts)
	}
	if f.connectCount() != before+2 {
		t.Fatalf("connect calls = %d, want %d", f.connectCount(), before+2)
	}

	m := receiveWithin(t, q, 2*time.Second)
	if m.Kind != port.KindStatus {
		t.Fatalf("want status after extension, got %+v", m)
	}
}

func TestWorker_AdditionalSymbolsWithoutSession(t *testing.T) {
	f := newFakeProvider()
	w, _ := newTestWorker(f)

	if n := w.SubscribeAdditionalSymbols([]string{"AAPL"}); n != 0 {
		t.Fatalf("no live session, added = %d, want 0", n)
	}
}

func TestSubscriptionPlan(t *testing.T) {
	fields := DerivativeFieldSet(true, false, false, true)
	pairs := SubscriptionPlan([]string{"SPY", ".SPY260320C500", "", "/ES"}, fields)

	want := []Pair{
		{Field: domain.FieldLast, Symbol: "SPY"},
		{Field: domain.FieldGamma, Symbol: ".SPY260320C500"},
		{Field: domain.FieldOpenInt, Symbol: ".SPY260320C500"},
		{Field: domain.FieldDelta, Symbol: ".SPY260320C500"},
		{Field: domain.FieldVolume, Symbol: ".SPY260320C500"},
		{Field: domain.FieldLast, Symbol: "/ES"},
	}
	if len(pairs) != len(want) {
		t.Fatalf("plan has %d pairs, want %d: %v", len(pairs), len(want), pairs)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Fatalf("pair %d = %v, want %v", i, pairs[i], want[i])
		}
	}
}
