package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ramppay/ramppay-sync-go/internal/domain"
)

type fetchResult struct {
	txn *domain.Transaction
	err error
}

// fakeFetcher serves scripted results in order; the last entry repeats. When
// blockCall is set, that call (1-based) parks until release is closed.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	results   []fetchResult
	blockCall int
	release   chan struct{}
	started   chan struct{}
}

func (f *fakeFetcher) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	var res fetchResult
	if call <= len(f.results) {
		res = f.results[call-1]
	} else if len(f.results) > 0 {
		res = f.results[len(f.results)-1]
	} else {
		res = fetchResult{err: errors.New("no scripted result")}
	}
	blocked := call == f.blockCall
	started := f.started
	release := f.release
	f.mu.Unlock()

	if blocked {
		if started != nil {
			close(started)
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return res.txn, res.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func txnWithStatus(id string, status domain.Status) *domain.Transaction {
	return &domain.Transaction{ID: id, Status: status, FiatAmount: 100, FiatCurrency: "EUR"}
}

func newTestChannel() *ChannelManager {
	return NewChannelManager(&fakeTransport{}, testConfig(), nopLogger{})
}

func pushUpdate(m *ChannelManager, txnID string) {
	raw, _ := json.Marshal(domain.TransactionUpdateData{TransactionID: txnID})
	m.registry.dispatch(domain.EventTransactionUpdate, raw)
}

func TestWatchBuildsInitialView(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{{txn: txnWithStatus("txn-1", domain.StatusPaymentConfirmed)}}}
	channel := newTestChannel()

	var updates []TransactionView
	var mu sync.Mutex
	w := NewWatcher(fetcher, channel, nopLogger{}, func(v TransactionView) {
		mu.Lock()
		updates = append(updates, v)
		mu.Unlock()
	})
	defer w.Close()

	if err := w.Watch(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	view, ok := w.Snapshot()
	if !ok {
		t.Fatal("Snapshot reported no view after successful Watch")
	}
	if view.Transaction.Status != domain.StatusPaymentConfirmed {
		t.Fatalf("view status = %s, want payment_confirmed", view.Transaction.Status)
	}
	want := [5]domain.StepState{domain.StepCompleted, domain.StepCompleted, domain.StepActive, domain.StepPending, domain.StepPending}
	if got := stateList(view.Steps); got != want {
		t.Fatalf("derived steps = %v, want %v", got, want)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 1 {
		t.Fatalf("onUpdate invocations = %d, want 1", len(updates))
	}
}

func TestBurstOfEventsCoalescesIntoTwoFetches(t *testing.T) {
	fetcher := &fakeFetcher{
		results:   []fetchResult{{txn: txnWithStatus("txn-1", domain.StatusPaymentProcessing)}},
		blockCall: 1,
		release:   make(chan struct{}),
		started:   make(chan struct{}),
	}
	channel := newTestChannel()
	w := NewWatcher(fetcher, channel, nopLogger{}, nil)
	defer w.Close()

	done := make(chan error, 1)
	go func() { done <- w.Watch(context.Background(), "txn-1") }()

	<-fetcher.started
	// A burst of events while the initial fetch is in flight must collapse
	// into exactly one follow-up fetch.
	for i := 0; i < 5; i++ {
		pushUpdate(channel, "txn-1")
	}
	close(fetcher.release)

	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if got := fetcher.callCount(); got != 2 {
		t.Fatalf("fetch count after burst = %d, want 2", got)
	}
}

func TestEventForOtherTransactionIgnored(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{{txn: txnWithStatus("txn-1", domain.StatusPending)}}}
	channel := newTestChannel()
	w := NewWatcher(fetcher, channel, nopLogger{}, nil)
	defer w.Close()

	if err := w.Watch(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	pushUpdate(channel, "txn-other")
	time.Sleep(30 * time.Millisecond)
	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("fetch count after foreign event = %d, want 1", got)
	}
}

func TestEventTriggersRefresh(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{
		{txn: txnWithStatus("txn-1", domain.StatusPaymentProcessing)},
		{txn: txnWithStatus("txn-1", domain.StatusPaymentConfirmed)},
	}}
	channel := newTestChannel()
	w := NewWatcher(fetcher, channel, nopLogger{}, nil)
	defer w.Close()

	if err := w.Watch(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	pushUpdate(channel, "txn-1")
	waitFor(t, "view refreshed from push", func() bool {
		view, ok := w.Snapshot()
		return ok && view.Transaction.Status == domain.StatusPaymentConfirmed
	})
}

func TestFailedStatusDerivesFromFurthestProgress(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{
		{txn: txnWithStatus("txn-1", domain.StatusConvertingToUSDT)},
		{txn: txnWithStatus("txn-1", domain.StatusFailed)},
	}}
	channel := newTestChannel()
	w := NewWatcher(fetcher, channel, nopLogger{}, nil)
	defer w.Close()

	if err := w.Watch(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	pushUpdate(channel, "txn-1")
	waitFor(t, "failed view", func() bool {
		view, ok := w.Snapshot()
		return ok && view.Transaction.Status == domain.StatusFailed
	})

	view, _ := w.Snapshot()
	want := [5]domain.StepState{domain.StepFailed, domain.StepFailed, domain.StepFailed, domain.StepPending, domain.StepPending}
	if got := stateList(view.Steps); got != want {
		t.Fatalf("failed steps = %v, want %v", got, want)
	}
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	fetcher := &fakeFetcher{
		results: []fetchResult{
			{txn: txnWithStatus("txn-1", domain.StatusPaymentProcessing)},
			{txn: txnWithStatus("txn-1", domain.StatusCompleted)},
		},
		blockCall: 2,
		release:   make(chan struct{}),
		started:   make(chan struct{}),
	}
	channel := newTestChannel()
	var updates int
	var mu sync.Mutex
	w := NewWatcher(fetcher, channel, nopLogger{}, func(TransactionView) {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	if err := w.Watch(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	pushUpdate(channel, "txn-1")
	<-fetcher.started
	w.Close()
	close(fetcher.release)
	time.Sleep(30 * time.Millisecond)

	view, ok := w.Snapshot()
	if !ok || view.Transaction.Status != domain.StatusPaymentProcessing {
		t.Fatalf("view changed after Close: %+v ok=%v", view, ok)
	}
	mu.Lock()
	defer mu.Unlock()
	if updates != 1 {
		t.Fatalf("onUpdate invocations = %d, want 1 (result after Close must be discarded)", updates)
	}
}

func TestCloseUnsubscribesFromChannel(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{{txn: txnWithStatus("txn-1", domain.StatusPending)}}}
	channel := newTestChannel()
	w := NewWatcher(fetcher, channel, nopLogger{}, nil)

	if err := w.Watch(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if got := channel.ListenerCount(domain.EventTransactionUpdate); got != 1 {
		t.Fatalf("listener count while watching = %d, want 1", got)
	}

	w.Close()
	if got := channel.ListenerCount(domain.EventTransactionUpdate); got != 0 {
		t.Fatalf("listener count after Close = %d, want 0", got)
	}

	pushUpdate(channel, "txn-1")
	time.Sleep(30 * time.Millisecond)
	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("fetch count after Close = %d, want 1", got)
	}
}

func TestWatchSurfacesNotFoundAndUnsubscribes(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{{err: &domain.NotFoundError{ID: "txn-missing"}}}}
	channel := newTestChannel()
	w := NewWatcher(fetcher, channel, nopLogger{}, nil)

	err := w.Watch(context.Background(), "txn-missing")
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Watch error = %v, want NotFoundError", err)
	}
	if got := channel.ListenerCount(domain.EventTransactionUpdate); got != 0 {
		t.Fatalf("listener count after failed Watch = %d, want 0", got)
	}
}

func TestFailedRefreshKeepsPreviousView(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{
		{txn: txnWithStatus("txn-1", domain.StatusPaymentConfirmed)},
		{err: &domain.FetchError{Message: "server returned status 500"}},
	}}
	channel := newTestChannel()
	w := NewWatcher(fetcher, channel, nopLogger{}, nil)
	defer w.Close()

	if err := w.Watch(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	pushUpdate(channel, "txn-1")
	waitFor(t, "second fetch attempted", func() bool { return fetcher.callCount() == 2 })
	time.Sleep(10 * time.Millisecond)

	view, ok := w.Snapshot()
	if !ok || view.Transaction.Status != domain.StatusPaymentConfirmed {
		t.Fatalf("previous view was not kept after refresh failure: %+v ok=%v", view, ok)
	}
}

func TestWatcherIsSingleUse(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchResult{{txn: txnWithStatus("txn-1", domain.StatusPending)}}}
	channel := newTestChannel()
	w := NewWatcher(fetcher, channel, nopLogger{}, nil)
	defer w.Close()

	if err := w.Watch(context.Background(), "txn-1"); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := w.Watch(context.Background(), "txn-2"); err == nil {
		t.Fatal("second Watch on the same watcher succeeded")
	}
}
