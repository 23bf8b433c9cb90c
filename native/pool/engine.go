package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	errs "poolhost/core/errors"
	"poolhost/core/events"
	"poolhost/core/types"
	"poolhost/native/bank"
	nativecommon "poolhost/native/common"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	errNilState = errors.New("pool engine: state not configured")
)

const moduleName = "pool"

var unlockNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("poolhost.unlock"))

type engineState interface {
	IsAccount(name string) (bool, error)
	Balance(owner string) (uint64, bool, error)
	Transfer(auth bank.Authorizer, from, to string, amount uint64, memo string) error
	TransferInternal(from, to string, amount uint64, memo string) error

	NextPoolID() (uint64, error)
	PoolByID(id uint64) (*Pool, bool, error)
	PoolByName(name string) (*Pool, bool, error)
	PutPool(p *Pool) error
	DeletePool(id uint64) error
	PoolsByReward() ([]*Pool, error)
	PoolsByOwner(owner string) ([]*Pool, error)

	NextHolderID() (uint64, error)
	HolderByID(id uint64) (*Holder, bool, error)
	HolderByPair(pool, holder string) (*Holder, bool, error)
	PutHolder(h *Holder) error
	HoldersByRecency(pool string) ([]*Holder, error)

	StakeOf(collateral string) (*Stake, bool, error)
	PutStake(s *Stake) error
	DeleteStake(collateral string) error

	RequestByTID(tid uint64) (*ServiceRequest, bool, error)
	PutRequest(r *ServiceRequest) error
	AddPoolAllocation(a *PoolAllocation) error
	PoolAllocations(tid uint64) ([]*PoolAllocation, error)
	AllPoolAllocations() ([]*PoolAllocation, error)
	DeletePoolAllocation(a *PoolAllocation) error
	AddHolderAllocation(a *HolderAllocation) error
	HolderAllocations(tid uint64) ([]*HolderAllocation, error)
	AllHolderAllocations() ([]*HolderAllocation, error)
	DeleteHolderAllocation(a *HolderAllocation) error

	AddPoolLock(l *PoolLock) error
	AddHolderLock(l *HolderLock) error
	DuePoolLocks(now uint64) ([]*PoolLock, error)
	DueHolderLocks(now uint64) ([]*HolderLock, error)
	PendingPoolLocks() ([]*PoolLock, error)
	DeletePoolLock(l *PoolLock) error
	DeleteHolderLock(l *HolderLock) error

	ClearTable(table Table) error

	Commit() error
	Discard()
}

// Scheduler defers an unlock sweep by delay. Delivery is at least once; the
// id is stable for a given pool and request so duplicates can be collapsed.
type Scheduler interface {
	Schedule(id string, delay time.Duration) error
}

// Observer receives engine telemetry.
type Observer interface {
	ObserveAction(action, outcome string, elapsed time.Duration)
	ObservePoolSkip(reason string)
	ObserveUnlock(scope string, amount uint64)
}

type noopObserver struct{}

func (noopObserver) ObserveAction(string, string, time.Duration) {}
func (noopObserver) ObservePoolSkip(string) {}
func (noopObserver) ObserveUnlock(string, uint64) {}

type scheduledUnlock struct {
	id    string
	delay time.Duration
}

// action collects the side effects released once an action commits.
type action struct {
	auth   Auth
	now    uint64
	events []*types.Event
	timers []scheduledUnlock
}

func (a *action) emit(evt *types.Event) { a.events = append(a.events, evt) }

// Engine executes pool actions against the configured state. Actions are
// serialized and each one commits all of its writes or none of them.
type Engine struct {
	mu        sync.Mutex
	state     engineState
	params    Params
	emitter   events.Emitter
	scheduler Scheduler
	observer  Observer
	pauses    nativecommon.PauseView
	logger    *slog.Logger
	tracer    trace.Tracer
	nowFn     func() int64
}

// NewEngine constructs an engine with the supplied parameters. The parameters
// are copied and never change afterwards.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params:   params,
		emitter:  events.NoopEmitter{},
		observer: noopObserver{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("poolhost/native/pool"),
		nowFn:    func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetScheduler configures where unlock callbacks are deferred to. Without a
// scheduler, locks are only released by explicit sweeps.
func (e *Engine) SetScheduler(s Scheduler) {
	if e == nil {
		return
	}
	e.scheduler = s
}

func (e *Engine) SetObserver(o Observer) {
	if e == nil {
		return
	}
	if o == nil {
		o = noopObserver{}
	}
	e.observer = o
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Params returns the engine parameters.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(poolEvent{evt: event})
}

// execute runs fn as one atomic action. Writes are committed only when fn
// succeeds; events and unlock callbacks are released after the commit.
func (e *Engine) execute(ctx context.Context, name string, auth Auth, guarded bool, fn func(*action) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if guarded {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
	}
	_, span := e.tracer.Start(ctx, "pool."+name)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	actionID := uuid.New()
	act := &action{auth: auth, now: e.now()}
	err := fn(act)
	if err == nil {
		if commitErr := e.state.Commit(); commitErr != nil {
			err = fmt.Errorf("pool engine: commit %s: %w", name, commitErr)
		}
	}
	outcome := errs.Kind(err)
	span.SetAttributes(attribute.String("pool.action_id", actionID.String()), attribute.String("pool.outcome", outcome))
	e.observer.ObserveAction(name, outcome, time.Since(started))
	if err != nil {
		e.state.Discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		e.logger.Debug("pool action rejected",
			slog.String("action", name),
			slog.String("actionId", actionID.String()),
			slog.String("kind", outcome),
			slog.String("error", err.Error()))
		return err
	}
	for _, evt := range act.events {
		e.emit(evt)
	}
	for _, timer := range act.timers {
		e.schedule(timer)
	}
	e.logger.Debug("pool action applied",
		slog.String("action", name),
		slog.String("actionId", actionID.String()),
		slog.Int("events", len(act.events)))
	return nil
}

func (e *Engine) schedule(timer scheduledUnlock) {
	if e.scheduler == nil {
		return
	}
	if err := e.scheduler.Schedule(timer.id, timer.delay); err != nil {
		e.logger.Warn("unlock callback not scheduled",
			slog.String("callback", timer.id),
			slog.String("error", err.Error()))
	}
}

func unlockCallbackID(tid, poolID uint64) string {
	return uuid.NewSHA1(unlockNamespace, []byte(fmt.Sprintf("%d/%d", tid, poolID))).String()
}

func (e *Engine) requireSigner(act *action, account string) error {
	if !act.auth.Signed(account) {
		return fmt.Errorf("%w: missing authority of %s", errs.ErrUnauthorized, account)
	}
	return nil
}

func (e *Engine) requireAccount(name string) error {
	ok, err := e.state.IsAccount(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: account %s does not exist", errs.ErrNotFound, name)
	}
	return nil
}

// validateTokens checks the symbol and that the amount is positive.
func (e *Engine) validateTokens(tokens types.Asset) error {
	if tokens.Symbol != e.params.Symbol {
		return fmt.Errorf("%w: expected %s, got %s", errs.ErrInvalidSymbol, e.params.Symbol, tokens.Symbol)
	}
	if tokens.Amount == 0 || tokens.Amount > types.MaxAmount {
		return fmt.Errorf("%w: amount must be positive", errs.ErrInvalidAmount)
	}
	return nil
}

func (e *Engine) loadPool(name string) (*Pool, error) {
	p, ok, err := e.state.PoolByName(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: pool %s", errs.ErrNotFound, name)
	}
	return p, nil
}

func (e *Engine) loadActivePool(name string) (*Pool, error) {
	p, err := e.loadPool(name)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: pool %s is not active", errs.ErrNotFound, name)
	}
	return p, nil
}

// balanceOf returns the ledger balance, treating a missing row as zero.
func (e *Engine) balanceOf(account string) (uint64, error) {
	bal, _, err := e.state.Balance(account)
	return bal, err
}

func (e *Engine) requireBalance(account string, need uint64, what string) error {
	bal, err := e.balanceOf(account)
	if err != nil {
		return err
	}
	if bal < need {
		return fmt.Errorf("%w: %s %s holds %d, needs %d", errs.ErrInsufficientBalance, what, account, bal, need)
	}
	return nil
}

// moveInternal performs an engine-initiated transfer. Zero legs and legs
// between the same account are skipped.
func (e *Engine) moveInternal(from, to string, amount uint64, memo string) error {
	if amount == 0 || from == to {
		return nil
	}
	return e.state.TransferInternal(from, to, amount, memo)
}

func (e *Engine) moveAuthorized(act *action, from, to string, amount uint64, memo string) error {
	if amount == 0 {
		return nil
	}
	return e.state.Transfer(act.auth, from, to, amount, memo)
}
