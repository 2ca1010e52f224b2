package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smalcash/backend/src/ledger"
	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
	"github.com/smalcash/backend/src/remote"
	"github.com/smalcash/backend/src/services"
)

// State names the phase of the retry state machine.
type State string

const (
	StateIdle    State = "idle"
	StatePushing State = "pushing"
	StateBackoff State = "backoff"
	StateFailed  State = "failed"
)

// Status is a snapshot of the engine for the status endpoint.
type Status struct {
	State       State  `json:"state"`
	LastError   string `json:"lastError,omitempty"`
	NextRetryIn string `json:"nextRetryIn,omitempty"`
}

// Engine reconciles the local ledger with the remote store: every recorded
// sale is eventually delivered exactly-once in effect. Transport may repeat
// (a push retried after a lost acknowledgment), but the sale's UUID
// idempotency key keeps the remote aggregate from double-counting.
type Engine struct {
	ledger ledger.Store
	remote remote.Store
	alerts services.AlertService

	interval   time.Duration
	backoffMin time.Duration
	backoffMax time.Duration

	trigger chan struct{}

	mu      sync.Mutex
	state   State
	lastErr string
	backoff time.Duration
}

func NewEngine(store ledger.Store, remoteStore remote.Store, alerts services.AlertService,
	interval, backoffMin, backoffMax time.Duration) *Engine {
	return &Engine{
		ledger:     store,
		remote:     remoteStore,
		alerts:     alerts,
		interval:   interval,
		backoffMin: backoffMin,
		backoffMax: backoffMax,
		trigger:    make(chan struct{}, 1),
		state:      StateIdle,
	}
}

// Run drives the engine until ctx is cancelled. A batch runs on startup,
// then on every tick, manual trigger, or backoff expiry.
func (e *Engine) Run(ctx context.Context) {
	logger.L.Info("Sync engine started", "interval", e.interval.String(),
		"backoffMin", e.backoffMin.String(), "backoffMax", e.backoffMax.String())

	e.runBatch(ctx)

	for {
		wait := e.interval
		e.mu.Lock()
		if e.backoff > 0 {
			wait = e.backoff
		}
		e.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.L.Info("Sync engine stopped")
			return
		case <-e.trigger:
			timer.Stop()
		case <-timer.C:
		}

		e.runBatch(ctx)
	}
}

// TriggerNow requests an immediate batch without waiting for the timer.
func (e *Engine) TriggerNow() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	status := Status{State: e.state, LastError: e.lastErr}
	if e.state == StateBackoff && e.backoff > 0 {
		status.NextRetryIn = e.backoff.String()
	}
	return status
}

// runBatch pushes the pending queue oldest first. Unavailable aborts the
// remainder of the batch and backs off; Rejected parks only the offending
// sale and continues.
func (e *Engine) runBatch(ctx context.Context) {
	sales, err := e.ledger.ListUnsynchronized()
	if err != nil {
		logger.L.Error("Sync batch failed to list unsynchronized sales", "error", err)
		e.setState(StateFailed, err.Error())
		return
	}
	if len(sales) == 0 {
		e.resetBackoff()
		e.setState(StateIdle, "")
		return
	}

	e.setState(StatePushing, "")
	logger.L.Info("Sync batch started", "pending", len(sales))

	rejectedCount := 0
	for i := range sales {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sale := &sales[i]
		remoteID, err := e.remote.PushSale(ctx, sale)
		if err != nil {
			if errors.Is(err, remote.ErrRejected) {
				e.parkRejected(sale, err)
				rejectedCount++
				continue
			}
			e.enterBackoff(err)
			return
		}

		if err := e.ledger.MarkSynchronized(sale.LocalID, remoteID); err != nil {
			// Push succeeded but the local flag did not stick. The next run
			// re-pushes the same UUID and the remote deduplicates it.
			logger.L.Error("Failed to mark sale synchronized after push",
				"localID", sale.LocalID, "remoteID", remoteID, "error", err)
			e.enterBackoff(err)
			return
		}
		logger.L.Info("Sale synchronized", "localID", sale.LocalID, "remoteID", remoteID)
	}

	e.resetBackoff()
	if rejectedCount > 0 {
		e.setState(StateFailed, "some sales were permanently rejected by the remote store")
		logger.L.Warn("Sync batch finished with rejected sales", "rejected", rejectedCount)
		return
	}
	e.setState(StateIdle, "")
	logger.L.Info("Sync batch finished", "synchronized", len(sales))
}

func (e *Engine) parkRejected(sale *models.Sale, pushErr error) {
	if err := e.ledger.MarkRejected(sale.LocalID, pushErr.Error()); err != nil {
		logger.L.Error("Failed to park rejected sale", "localID", sale.LocalID, "error", err)
		return
	}
	if e.alerts != nil {
		if err := e.alerts.SendSyncFailureAlert(sale, pushErr.Error()); err != nil {
			logger.L.Error("Failed to send rejection alert", "localID", sale.LocalID, "error", err)
		}
	}
}

func (e *Engine) enterBackoff(cause error) {
	e.mu.Lock()
	if e.backoff == 0 {
		e.backoff = e.backoffMin
	} else {
		e.backoff *= 2
		if e.backoff > e.backoffMax {
			e.backoff = e.backoffMax
		}
	}
	e.state = StateBackoff
	e.lastErr = cause.Error()
	wait := e.backoff
	e.mu.Unlock()

	logger.L.Warn("Sync batch aborted, backing off", "error", cause, "retryIn", wait.String())
}

func (e *Engine) resetBackoff() {
	e.mu.Lock()
	e.backoff = 0
	e.mu.Unlock()
}

func (e *Engine) setState(s State, errMsg string) {
	e.mu.Lock()
	e.state = s
	e.lastErr = errMsg
	e.mu.Unlock()
}
