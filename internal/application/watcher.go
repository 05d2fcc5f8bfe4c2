package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ramppay/ramppay-sync-go/internal/adapters/metrics"
	"github.com/ramppay/ramppay-sync-go/internal/domain"
	"github.com/ramppay/ramppay-sync-go/pkg/contextkeys"
	"github.com/ramppay/ramppay-sync-go/pkg/safego"
)

// TransactionView is the rebuilt-on-every-refresh view of one transaction:
// the authoritative record plus the derived progress steps. It is a value,
// never patched field by field.
type TransactionView struct {
	Transaction domain.Transaction
	Steps       [5]domain.Step
}

// Watcher reconciles one transaction's displayed state: an initial pull-fetch
// merged with a stream of push invalidation events. Push events never carry
// field values; every event for the watched id triggers a full re-fetch, with
// at most one fetch in flight and at most one coalesced follow-up pending.
type Watcher struct {
	fetcher  domain.TransactionFetcher
	channel  *ChannelManager
	logger   domain.Logger
	onUpdate func(TransactionView)

	mu       sync.Mutex
	txnID    string
	view     *TransactionView
	furthest domain.Status // furthest non-failed status observed, feeds failed derivation
	inFlight bool
	pending  bool
	closed   bool
	sub      *Subscription
}

// NewWatcher creates a watcher. onUpdate is invoked after every successful
// refresh, including the initial one; it may be nil.
func NewWatcher(fetcher domain.TransactionFetcher, channel *ChannelManager, logger domain.Logger, onUpdate func(TransactionView)) *Watcher {
	return &Watcher{
		fetcher:  fetcher,
		channel:  channel,
		logger:   logger,
		onUpdate: onUpdate,
		furthest: domain.StatusPending,
	}
}

// Watch subscribes to push events for the transaction and performs the
// initial pull-fetch. The subscription is registered before the fetch so an
// event arriving mid-fetch coalesces into one follow-up instead of being
// lost. A NotFoundError or FetchError from the initial fetch is returned to
// the caller for user-visible surfacing; the watcher is left unsubscribed.
func (w *Watcher) Watch(ctx context.Context, txnID string) error {
	ctx = context.WithValue(ctx, contextkeys.TransactionIDKey, txnID)

	w.mu.Lock()
	if w.sub != nil || w.closed {
		w.mu.Unlock()
		return errors.New("watcher already used")
	}
	w.txnID = txnID
	w.inFlight = true
	w.sub = w.channel.Subscribe(domain.EventTransactionUpdate, func(data json.RawMessage) {
		w.handlePush(ctx, data)
	})
	w.mu.Unlock()

	txn, err := w.fetcher.GetTransaction(ctx, txnID)
	if err != nil {
		w.recordFetchFailure(ctx, err)
		w.Close()
		return err
	}
	metrics.IncrementFetches("ok")
	w.apply(ctx, txn)

	w.drain(ctx)
	return nil
}

// Snapshot returns a copy of the current view, or false before the first
// successful fetch.
func (w *Watcher) Snapshot() (TransactionView, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.view == nil {
		return TransactionView{}, false
	}
	return *w.view, true
}

// Close detaches the watcher. The event subscription is removed
// synchronously, so no handler runs after Close returns; an in-flight fetch
// is allowed to finish but its result is discarded.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	sub := w.sub
	w.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// handlePush reacts to one transaction_update event. Events naming another
// transaction are ignored. When a refresh is already in flight the event
// collapses into a single pending follow-up, however many events arrive.
func (w *Watcher) handlePush(ctx context.Context, data json.RawMessage) {
	var update domain.TransactionUpdateData
	if err := json.Unmarshal(data, &update); err != nil {
		w.logger.Warn(ctx, "Discarding malformed transaction_update payload", "error", err.Error())
		return
	}

	w.mu.Lock()
	if w.closed || update.TransactionID != w.txnID {
		w.mu.Unlock()
		return
	}
	if w.inFlight {
		if !w.pending {
			w.pending = true
		} else {
			metrics.IncrementCoalescedRefreshes()
		}
		w.mu.Unlock()
		w.logger.Debug(ctx, "Refresh already in flight, follow-up scheduled")
		return
	}
	w.inFlight = true
	w.mu.Unlock()

	safego.Execute(ctx, w.logger, "WatcherRefresh", func() {
		w.refresh(ctx)
		w.drain(ctx)
	})
}

// drain runs follow-up refreshes until no further push arrived mid-fetch,
// then clears the in-flight flag. Caller must have set inFlight.
func (w *Watcher) drain(ctx context.Context) {
	for {
		w.mu.Lock()
		if w.closed || !w.pending {
			w.inFlight = false
			w.pending = false
			w.mu.Unlock()
			return
		}
		w.pending = false
		w.mu.Unlock()
		w.refresh(ctx)
	}
}

// refresh performs one pull-fetch and applies the result. Failures keep the
// previous view; the next push event will retry.
func (w *Watcher) refresh(ctx context.Context) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	txnID := w.txnID
	w.mu.Unlock()

	txn, err := w.fetcher.GetTransaction(ctx, txnID)
	if err != nil {
		w.recordFetchFailure(ctx, err)
		return
	}
	metrics.IncrementFetches("ok")
	w.apply(ctx, txn)
}

// apply rebuilds the view from a freshly fetched record and notifies the
// observer. A result arriving after Close is discarded; no state update
// escapes a disposed watcher.
func (w *Watcher) apply(ctx context.Context, txn *domain.Transaction) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if order, ok := txn.Status.Order(); ok {
		if furthestOrder, _ := w.furthest.Order(); order > furthestOrder {
			w.furthest = txn.Status
		}
	}
	view := TransactionView{
		Transaction: *txn,
		Steps:       DeriveSteps(txn.Status, w.furthest),
	}
	w.view = &view
	onUpdate := w.onUpdate
	w.mu.Unlock()

	w.logger.Debug(ctx, "Transaction view refreshed", "status", string(txn.Status))
	if onUpdate != nil {
		onUpdate(view)
	}
}

func (w *Watcher) recordFetchFailure(ctx context.Context, err error) {
	var nf *domain.NotFoundError
	var fe *domain.FetchError
	switch {
	case errors.As(err, &nf):
		metrics.IncrementFetches("not_found")
		w.logger.Warn(ctx, "Watched transaction not found", "error", err.Error())
	case errors.As(err, &fe) && fe.IsTimeout:
		metrics.IncrementFetches("timeout")
		w.logger.Warn(ctx, "Transaction fetch timed out", "error", err.Error())
	case errors.As(err, &fe) && fe.IsNetworkError:
		metrics.IncrementFetches("network")
		w.logger.Warn(ctx, "Transaction fetch hit a network error", "error", err.Error())
	default:
		metrics.IncrementFetches("error")
		w.logger.Error(ctx, "Transaction fetch failed", "error", err.Error())
	}
}
