package pool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "poolhost/core/errors"
	"poolhost/core/events"
	"poolhost/core/state"
	"poolhost/core/types"
	nativecommon "poolhost/native/common"
	"poolhost/native/pool"
	"poolhost/storage"

	"github.com/shopspring/decimal"
)

const (
	operator  = "aim"
	escrow    = "escrow.aim"
	mainPool  = "mainpool.aim"
	requester = "requester1"
	holderA   = "holder1"
	holderB   = "holder2"
)

const genesisTime int64 = 1_700_000_000

// tokens converts whole tokens into base units at precision 4.
func tokens(n uint64) uint64 { return n * 10_000 }

type recordingScheduler struct {
	ids    []string
	delays []time.Duration
}

func (s *recordingScheduler) Schedule(id string, delay time.Duration) error {
	s.ids = append(s.ids, id)
	s.delays = append(s.delays, delay)
	return nil
}

func eventTypes(rec *events.Recorder) []string {
	var out []string
	for _, evt := range rec.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

func countEvents(rec *events.Recorder, eventType string) int {
	n := 0
	for _, t := range eventTypes(rec) {
		if t == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	state   *state.Manager
	engine  *pool.Engine
	params  pool.Params
	clock   int64
	sched   *recordingScheduler
	emitted *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	params := pool.DefaultParams()
	mgr := state.NewManager(storage.NewMemDB(), params.Symbol)
	ledger := mgr.Ledger()
	accounts := []string{
		operator, escrow, mainPool, requester, holderA, holderB,
		"pool1", "owner1", "collat1", "rewards1",
		"pool2", "owner2", "collat2", "rewards2",
	}
	for _, name := range accounts {
		if err := ledger.CreateAccount(name, uint64(genesisTime)); err != nil {
			t.Fatalf("create account %s: %v", name, err)
		}
	}
	funding := map[string]uint64{
		mainPool:  tokens(1_000_000),
		requester: tokens(100_000),
		holderA:   tokens(600_000),
		holderB:   tokens(600_000),
		"collat1": tokens(2_000_000),
		"collat2": tokens(2_000_000),
	}
	for name, amount := range funding {
		if err := ledger.Issue(name, amount); err != nil {
			t.Fatalf("issue %s: %v", name, err)
		}
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit genesis: %v", err)
	}

	engine, err := pool.NewEngine(params)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		state:   mgr,
		engine:  engine,
		params:  params,
		clock:   genesisTime,
		sched:   &recordingScheduler{},
		emitted: events.NewRecorder(1024),
	}
	engine.SetState(mgr)
	engine.SetNowFunc(func() int64 { return f.clock })
	engine.SetScheduler(f.sched)
	engine.SetEmitter(f.emitted)
	if err := engine.Initialize(f.ctx, pool.SignedBy(operator)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return f
}

func (f *fixture) asset(amount uint64) types.Asset {
	return types.NewAsset(amount, f.params.Symbol)
}

func (f *fixture) spec(index, reward string) pool.PoolSpec {
	return pool.PoolSpec{
		Name:             "pool" + index,
		Owner:            "owner" + index,
		Collateral:       "collat" + index,
		RewardAccount:    "rewards" + index,
		Reward:           decimal.RequireFromString(reward),
		OwnerShare:       decimal.NewFromInt(50),
		HolderShare:      decimal.NewFromInt(50),
		CollateralAmount: f.asset(tokens(2_000_000)),
	}
}

func (f *fixture) addPool(spec pool.PoolSpec) *pool.Pool {
	f.t.Helper()
	p, err := f.engine.AddPool(f.ctx, pool.Auth{}, spec)
	if err != nil {
		f.t.Fatalf("add pool %s: %v", spec.Name, err)
	}
	return p
}

func (f *fixture) join(poolName, holder string, amount uint64) {
	f.t.Helper()
	if err := f.engine.JoinPool(f.ctx, pool.SignedBy(holder), poolName, holder, f.asset(amount)); err != nil {
		f.t.Fatalf("join %s/%s: %v", poolName, holder, err)
	}
}

func (f *fixture) request(tid uint64, amount uint64) *pool.ServiceRequest {
	f.t.Helper()
	req, err := f.engine.RequestService(f.ctx, pool.SignedBy(requester), tid, requester, f.asset(amount))
	if err != nil {
		f.t.Fatalf("request %d: %v", tid, err)
	}
	return req
}

func (f *fixture) balance(account string) uint64 {
	f.t.Helper()
	bal, err := f.engine.Balance(account)
	if err != nil {
		f.t.Fatalf("balance %s: %v", account, err)
	}
	return bal
}

func (f *fixture) pool(name string) *pool.Pool {
	f.t.Helper()
	p, err := f.engine.Pool(name)
	if err != nil {
		f.t.Fatalf("pool %s: %v", name, err)
	}
	return p
}

func (f *fixture) holder(poolName, holder string) *pool.Holder {
	f.t.Helper()
	h, err := f.engine.Holder(poolName, holder)
	if err != nil {
		f.t.Fatalf("holder %s/%s: %v", poolName, holder, err)
	}
	return h
}

// checkInvariants asserts the aggregate bounds and the stake pairing that
// must hold after every action.
func (f *fixture) checkInvariants() {
	f.t.Helper()
	pools, err := f.engine.Pools()
	if err != nil {
		f.t.Fatalf("pools: %v", err)
	}
	for _, p := range pools {
		if p.Available > p.Total {
			f.t.Fatalf("pool %s available %d exceeds total %d", p.Name, p.Available, p.Total)
		}
		holders, err := f.engine.Holders(p.Name)
		if err != nil {
			f.t.Fatalf("holders %s: %v", p.Name, err)
		}
		for _, h := range holders {
			if h.Remaining > h.Contributed {
				f.t.Fatalf("holder %s remaining %d exceeds contributed %d", h.Holder, h.Remaining, h.Contributed)
			}
		}
		if p.ID == pool.MainPoolID {
			continue
		}
		_, err = f.engine.Stake(p.Collateral)
		if p.Active && err != nil {
			f.t.Fatalf("active pool %s has no stake: %v", p.Name, err)
		}
		if !p.Active && !errors.Is(err, errs.ErrNotFound) {
			f.t.Fatalf("inactive pool %s still staked: %v", p.Name, err)
		}
	}
}

func TestInitializeCreatesMainPool(t *testing.T) {
	f := newFixture(t)
	main, err := f.engine.PoolByID(pool.MainPoolID)
	if err != nil {
		t.Fatalf("main pool: %v", err)
	}
	if main.Name != mainPool || main.Total != tokens(1_000_000) || main.Available != tokens(1_000_000) {
		t.Fatalf("unexpected main pool: %+v", main)
	}
	if err := f.engine.Initialize(f.ctx, pool.SignedBy(operator)); err != nil {
		t.Fatalf("second initialize should be a no-op: %v", err)
	}
	if countEvents(f.emitted, pool.EventTypeInitialized) != 1 {
		t.Fatalf("expected one initialized event, got %v", eventTypes(f.emitted))
	}
}

func TestInitializeRequiresOperator(t *testing.T) {
	params := pool.DefaultParams()
	mgr := state.NewManager(storage.NewMemDB(), params.Symbol)
	engine, err := pool.NewEngine(params)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetState(mgr)
	if err := engine.Initialize(context.Background(), pool.SignedBy("mallory")); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.Initialize(context.Background(), pool.SignedBy(operator)); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected missing main pool balance to fail, got %v", err)
	}
}

func TestAddPoolValidation(t *testing.T) {
	f := newFixture(t)
	p := f.addPool(f.spec("1", "1"))
	if p.ID == pool.MainPoolID || p.Total != 0 || p.Available != 0 || p.OwnerReward != 0 {
		t.Fatalf("unexpected admitted pool: %+v", p)
	}
	if p.LockSeconds != 403 {
		t.Fatalf("expected 403s lock, got %d", p.LockSeconds)
	}
	stake, err := f.engine.Stake("collat1")
	if err != nil || stake.Amount != tokens(2_000_000) {
		t.Fatalf("expected stake row, got %+v err=%v", stake, err)
	}

	if _, err := f.engine.AddPool(f.ctx, pool.Auth{}, f.spec("1", "2")); !errors.Is(err, errs.ErrDuplicateEntity) {
		t.Fatalf("expected duplicate pool name, got %v", err)
	}

	reused := f.spec("2", "1")
	reused.Collateral = "collat1"
	if _, err := f.engine.AddPool(f.ctx, pool.Auth{}, reused); !errors.Is(err, errs.ErrDuplicateEntity) {
		t.Fatalf("expected duplicate collateral, got %v", err)
	}

	small := f.spec("2", "1")
	small.CollateralAmount = f.asset(f.params.MinCollateral - 1)
	if _, err := f.engine.AddPool(f.ctx, pool.Auth{}, small); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Fatalf("expected collateral below minimum to fail, got %v", err)
	}

	wrongSymbol := f.spec("2", "1")
	wrongSymbol.CollateralAmount = types.NewAsset(tokens(2_000_000), types.Symbol{Code: "EOS", Precision: 4})
	if _, err := f.engine.AddPool(f.ctx, pool.Auth{}, wrongSymbol); !errors.Is(err, errs.ErrInvalidSymbol) {
		t.Fatalf("expected invalid symbol, got %v", err)
	}

	badName := f.spec("2", "1")
	badName.Name = "pool_9"
	if _, err := f.engine.AddPool(f.ctx, pool.Auth{}, badName); !errors.Is(err, errs.ErrInvalidName) {
		t.Fatalf("expected invalid pool name, got %v", err)
	}

	overShared := f.spec("2", "1")
	overShared.HolderShare = decimal.NewFromInt(51)
	if _, err := f.engine.AddPool(f.ctx, pool.Auth{}, overShared); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Fatalf("expected shares above 100 to fail, got %v", err)
	}

	ghostOwner := f.spec("2", "1")
	ghostOwner.Owner = "nobody"
	if _, err := f.engine.AddPool(f.ctx, pool.Auth{}, ghostOwner); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected unknown owner to fail, got %v", err)
	}

	poor := f.spec("2", "1")
	poor.CollateralAmount = f.asset(tokens(2_000_001))
	if _, err := f.engine.AddPool(f.ctx, pool.Auth{}, poor); !errors.Is(err, errs.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient collateral balance, got %v", err)
	}
	f.checkInvariants()
}

func TestAddPoolRequiresMainPool(t *testing.T) {
	params := pool.DefaultParams()
	mgr := state.NewManager(storage.NewMemDB(), params.Symbol)
	engine, err := pool.NewEngine(params)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetState(mgr)
	spec := pool.PoolSpec{
		Name:             "pool1",
		Owner:            "owner1",
		Collateral:       "collat1",
		RewardAccount:    "rewards1",
		CollateralAmount: types.NewAsset(tokens(2_000_000), params.Symbol),
	}
	if _, err := engine.AddPool(context.Background(), pool.Auth{}, spec); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected missing main pool, got %v", err)
	}
}

func TestStakedCollateralCannotBeSpent(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	err := f.engine.JoinPool(f.ctx, pool.SignedBy("collat1"), "pool1", "collat1", f.asset(tokens(1)))
	if !errors.Is(err, errs.ErrInsufficientBalance) {
		t.Fatalf("expected staked collateral to be frozen, got %v", err)
	}
}

func TestJoinLendAndLeave(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))

	if err := f.engine.JoinPool(f.ctx, pool.SignedBy(holderB), "pool1", holderA, f.asset(tokens(10))); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected missing holder signature to fail, got %v", err)
	}
	if err := f.engine.LendMore(f.ctx, pool.SignedBy(holderA), "pool1", holderA, f.asset(tokens(10))); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected lend-more without position to fail, got %v", err)
	}

	f.join("pool1", holderA, tokens(300_000))
	if err := f.engine.LendMore(f.ctx, pool.SignedBy(holderA), "pool1", holderA, f.asset(tokens(200_000))); err != nil {
		t.Fatalf("lend more: %v", err)
	}
	h := f.holder("pool1", holderA)
	if h.Contributed != tokens(500_000) || h.Remaining != tokens(500_000) {
		t.Fatalf("unexpected holder after lend-more: %+v", h)
	}
	p := f.pool("pool1")
	if p.Total != tokens(500_000) || p.Available != tokens(500_000) {
		t.Fatalf("unexpected pool aggregates: %+v", p)
	}
	if got := f.balance("pool1"); got != tokens(500_000) {
		t.Fatalf("pool account balance %d", got)
	}

	if err := f.engine.JoinPool(f.ctx, pool.SignedBy(holderA), "pool1", holderA, f.asset(tokens(200_000))); !errors.Is(err, errs.ErrInsufficientBalance) {
		t.Fatalf("expected overdraw to fail, got %v", err)
	}

	if err := f.engine.LeavePool(f.ctx, pool.SignedBy(holderA), "pool1", holderA); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := f.balance(holderA); got != tokens(600_000) {
		t.Fatalf("expected principal back, balance %d", got)
	}
	h = f.holder("pool1", holderA)
	if h.Active || h.Contributed != 0 || h.Remaining != 0 {
		t.Fatalf("expected deactivated holder, got %+v", h)
	}
	if err := f.engine.LeavePool(f.ctx, pool.SignedBy(holderA), "pool1", holderA); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected second leave to fail, got %v", err)
	}

	// Rejoining reactivates the existing row rather than adding a second one.
	f.join("pool1", holderA, tokens(1_000))
	rejoined := f.holder("pool1", holderA)
	if !rejoined.Active || rejoined.ID != h.ID || rejoined.Contributed != tokens(1_000) {
		t.Fatalf("unexpected rejoined holder: %+v", rejoined)
	}
	holders, err := f.engine.Holders("pool1")
	if err != nil || len(holders) != 1 {
		t.Fatalf("expected a single holder row, got %d err=%v", len(holders), err)
	}
	f.checkInvariants()
}

func TestRequestServiceSettlesEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	now := uint64(f.clock)
	requesterBefore := f.balance(requester)

	req := f.request(1, tokens(100_000))
	if !req.FeePaid || !req.ServiceProvided {
		t.Fatalf("expected request settled, got %+v", req)
	}
	if req.Total != tokens(100_000) || req.Fee != tokens(500) || req.Reward != tokens(1_000) {
		t.Fatalf("unexpected request amounts: %+v", req)
	}

	p := f.pool("pool1")
	if p.Available != tokens(400_000) || p.Total != tokens(500_000) {
		t.Fatalf("unexpected pool aggregates: %+v", p)
	}
	if p.LockStart != now {
		t.Fatalf("expected lock start %d, got %d", now, p.LockStart)
	}
	if p.OwnerReward != tokens(500) {
		t.Fatalf("expected owner reward 500 AIM, got %d", p.OwnerReward)
	}

	locks, err := f.engine.PendingLocks()
	if err != nil {
		t.Fatalf("pending locks: %v", err)
	}
	if len(locks) != 1 || locks[0].Amount != tokens(100_000) || locks[0].UnlockAt != now+403 {
		t.Fatalf("unexpected locks: %+v", locks)
	}

	h := f.holder("pool1", holderA)
	if h.Remaining != tokens(400_000) || h.Reward != tokens(500) {
		t.Fatalf("unexpected holder: %+v", h)
	}

	if paid := requesterBefore - f.balance(requester); paid != req.Fee+req.Reward {
		t.Fatalf("requester paid %d, want %d", paid, req.Fee+req.Reward)
	}
	if got := f.balance("pool1"); got != tokens(500_000) {
		t.Fatalf("expected pool principal returned, balance %d", got)
	}
	if got := f.balance("rewards1"); got != tokens(1_000) {
		t.Fatalf("expected reward account credited, balance %d", got)
	}
	if got := f.balance(operator); got != req.Fee {
		t.Fatalf("expected operator to retain the fee, balance %d", got)
	}
	if got := f.balance(escrow); got != 0 {
		t.Fatalf("expected escrow drained, balance %d", got)
	}

	if len(f.sched.ids) != 1 || f.sched.delays[0] != 403*time.Second {
		t.Fatalf("expected one unlock callback after 403s, got %v %v", f.sched.ids, f.sched.delays)
	}
	if countEvents(f.emitted, pool.EventTypeServiceProvided) != 1 {
		t.Fatalf("expected settlement event, got %v", eventTypes(f.emitted))
	}
	f.checkInvariants()
}

func TestLeaveWhileTokensLockedFails(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	f.request(1, tokens(100_000))

	err := f.engine.LeavePool(f.ctx, pool.SignedBy(holderA), "pool1", holderA)
	if !errors.Is(err, errs.ErrTokensLocked) {
		t.Fatalf("expected tokens locked, got %v", err)
	}
	if err := f.engine.TerminatePool(f.ctx, pool.SignedBy("owner1"), "pool1"); !errors.Is(err, errs.ErrTokensLocked) {
		t.Fatalf("expected termination blocked, got %v", err)
	}
}

func TestUnlockSweepRestoresExactly(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	f.request(1, tokens(100_000))
	unlockAt := uint64(f.clock) + 403

	f.clock += 402
	early, err := f.engine.UnlockTokens(f.ctx)
	if err != nil {
		t.Fatalf("early sweep: %v", err)
	}
	if early.PoolLocks != 0 || early.HolderLocks != 0 {
		t.Fatalf("expected nothing due, got %+v", early)
	}
	if !early.HasPendingLock || early.NextUnlockAt != unlockAt {
		t.Fatalf("expected pending lock at %d, got %+v", unlockAt, early)
	}
	if p := f.pool("pool1"); p.Available != tokens(400_000) {
		t.Fatalf("early sweep changed availability: %d", p.Available)
	}

	f.clock++
	swept, err := f.engine.UnlockTokens(f.ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept.PoolLocks != 1 || swept.HolderLocks != 1 ||
		swept.PoolAmount != tokens(100_000) || swept.HolderAmount != tokens(100_000) {
		t.Fatalf("unexpected sweep result: %+v", swept)
	}
	if swept.HasPendingLock {
		t.Fatalf("expected no pending locks, got %+v", swept)
	}
	if p := f.pool("pool1"); p.Available != tokens(500_000) {
		t.Fatalf("expected availability restored, got %d", p.Available)
	}
	if h := f.holder("pool1", holderA); h.Remaining != h.Contributed {
		t.Fatalf("expected holder restored, got %+v", h)
	}
	locks, err := f.engine.PendingLocks()
	if err != nil || len(locks) != 0 {
		t.Fatalf("expected lock entries removed, got %+v err=%v", locks, err)
	}

	again, err := f.engine.UnlockTokens(f.ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != (pool.SweepResult{}) {
		t.Fatalf("expected idempotent sweep, got %+v", again)
	}

	if err := f.engine.LeavePool(f.ctx, pool.SignedBy(holderA), "pool1", holderA); err != nil {
		t.Fatalf("leave after unlock: %v", err)
	}
	if got := f.balance(holderA); got != tokens(600_000)+tokens(500) {
		t.Fatalf("expected principal and reward, balance %d", got)
	}
	f.checkInvariants()
}

func TestUnlockSweepReportsClampedRestore(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	f.request(1, tokens(100_000))
	if err := f.engine.ResetTable(f.ctx, pool.SignedBy(operator), pool.TableHolderAllocations); err != nil {
		t.Fatalf("reset holder allocations: %v", err)
	}
	if h := f.holder("pool1", holderA); h.Remaining != h.Contributed {
		t.Fatalf("expected holder already whole, got %+v", h)
	}

	f.clock += 403
	swept, err := f.engine.UnlockTokens(f.ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept.PoolLocks != 1 || swept.HolderLocks != 1 {
		t.Fatalf("expected both locks released, got %+v", swept)
	}
	if swept.PoolAmount != tokens(100_000) || swept.HolderAmount != 0 {
		t.Fatalf("expected only restored amounts reported, got %+v", swept)
	}
	if h := f.holder("pool1", holderA); h.Remaining != tokens(500_000) {
		t.Fatalf("holder over-restored: %+v", h)
	}
}

func TestDuplicateTIDLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	f.request(7, tokens(100_000))

	before := f.pool("pool1")
	requesterBefore := f.balance(requester)
	scheduled := len(f.sched.ids)

	_, err := f.engine.RequestService(f.ctx, pool.SignedBy(requester), 7, requester, f.asset(tokens(10)))
	if !errors.Is(err, errs.ErrDuplicateEntity) {
		t.Fatalf("expected duplicate TID, got %v", err)
	}
	after := f.pool("pool1")
	if after.Available != before.Available || after.OwnerReward != before.OwnerReward {
		t.Fatalf("pool mutated: before %+v after %+v", before, after)
	}
	if f.balance(requester) != requesterBefore {
		t.Fatalf("requester balance mutated")
	}
	if len(f.sched.ids) != scheduled {
		t.Fatalf("unlock callback scheduled for rejected request")
	}
}

func TestFailedRequestRollsBack(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	if err := f.state.Ledger().TransferInternal(requester, holderB, tokens(99_990), "drain"); err != nil {
		t.Fatalf("drain requester: %v", err)
	}
	if err := f.state.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	emitted := len(f.emitted.Events())

	// The requester cannot cover fee and reward, so the allocation made
	// before fee collection must not survive.
	_, err := f.engine.RequestService(f.ctx, pool.SignedBy(requester), 1, requester, f.asset(tokens(100_000)))
	if !errors.Is(err, errs.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if p := f.pool("pool1"); p.Available != tokens(500_000) {
		t.Fatalf("expected pool untouched, got %+v", p)
	}
	if _, err := f.engine.Request(1); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected no request row, got %v", err)
	}
	locks, err := f.engine.PendingLocks()
	if err != nil || len(locks) != 0 {
		t.Fatalf("expected no locks, got %+v err=%v", locks, err)
	}
	if len(f.emitted.Events()) != emitted || len(f.sched.ids) != 0 {
		t.Fatalf("side effects leaked from a rejected action")
	}
}

func TestAllocatorPrefersCheaperPools(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.addPool(f.spec("2", "0.5"))
	f.join("pool1", holderA, tokens(100_000))
	f.join("pool2", holderB, tokens(100_000))

	req := f.request(1, tokens(150_000))
	if p := f.pool("pool2"); p.Available != 0 {
		t.Fatalf("expected cheaper pool drained first, available %d", p.Available)
	}
	if p := f.pool("pool1"); p.Available != tokens(50_000) {
		t.Fatalf("expected remainder from pool1, available %d", p.Available)
	}
	// 0.5% of 100,000 plus 1% of 50,000.
	if req.Reward != tokens(500)+tokens(500) {
		t.Fatalf("unexpected reward %d", req.Reward)
	}
	f.checkInvariants()
}

func TestAllocatorDrawsLeastRecentlyUsedHolderFirst(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(50_000))
	f.clock += 10
	f.join("pool1", holderB, tokens(50_000))
	f.clock += 10

	f.request(1, tokens(60_000))
	first := f.holder("pool1", holderA)
	second := f.holder("pool1", holderB)
	if first.Remaining != 0 {
		t.Fatalf("expected earliest holder exhausted, got %+v", first)
	}
	if second.Remaining != tokens(40_000) {
		t.Fatalf("expected later holder drawn for the rest, got %+v", second)
	}
	if first.LastUsedAt != uint64(f.clock) {
		t.Fatalf("expected exhausted holder recency advanced, got %d", first.LastUsedAt)
	}
	if second.LastUsedAt != uint64(genesisTime+10) {
		t.Fatalf("partial draw must not advance recency, got %d", second.LastUsedAt)
	}

	holders, err := f.engine.Holders("pool1")
	if err != nil {
		t.Fatalf("holders: %v", err)
	}
	if holders[0].Holder != holderB {
		t.Fatalf("expected %s first after exhaustion of %s, got %s", holderB, holderA, holders[0].Holder)
	}
}

func TestMainPoolBackstopsShortfall(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(10_000))
	mainBefore := f.balance(mainPool)

	req := f.request(1, tokens(30_000))
	if p := f.pool("pool1"); p.Available != 0 {
		t.Fatalf("expected pool drained, got %d", p.Available)
	}
	// 1% of 10,000 from pool1 and 0.1% of 20,000 from the main pool.
	if req.Reward != tokens(100)+tokens(20) {
		t.Fatalf("unexpected reward %d", req.Reward)
	}
	if got := f.balance(mainPool); got != mainBefore+tokens(20) {
		t.Fatalf("expected main pool principal back plus reward, got %d", got)
	}
	main, err := f.engine.PoolByID(pool.MainPoolID)
	if err != nil {
		t.Fatalf("main pool: %v", err)
	}
	if main.OwnerReward != tokens(20) {
		t.Fatalf("expected main pool to keep its reward, got %d", main.OwnerReward)
	}
	locks, err := f.engine.PendingLocks()
	if err != nil || len(locks) != 1 || locks[0].Pool != "pool1" {
		t.Fatalf("main pool must never be locked: %+v err=%v", locks, err)
	}
}

func TestShortfallBeyondMainPoolAbortsRequest(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(10_000))
	mainBefore := f.balance(mainPool)
	requesterBefore := f.balance(requester)
	escrowBefore := f.balance(escrow)
	scheduled := len(f.sched.ids)
	emitted := len(f.emitted.Events())

	_, err := f.engine.RequestService(f.ctx, pool.SignedBy(requester), 1, requester, f.asset(tokens(1_020_000)))
	if !errors.Is(err, errs.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if p := f.pool("pool1"); p.Available != tokens(10_000) || p.OwnerReward != 0 {
		t.Fatalf("pool1 partially drawn: %+v", p)
	}
	if h := f.holder("pool1", holderA); h.Remaining != tokens(10_000) || h.Reward != 0 {
		t.Fatalf("holder partially drawn: %+v", h)
	}
	if _, err := f.engine.Request(1); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected no request row, got %v", err)
	}
	locks, err := f.engine.PendingLocks()
	if err != nil || len(locks) != 0 {
		t.Fatalf("expected no locks, got %+v err=%v", locks, err)
	}
	if f.balance(mainPool) != mainBefore || f.balance(requester) != requesterBefore || f.balance(escrow) != escrowBefore {
		t.Fatalf("balances moved: main=%d requester=%d escrow=%d",
			f.balance(mainPool), f.balance(requester), f.balance(escrow))
	}
	if len(f.sched.ids) != scheduled {
		t.Fatalf("unlock callbacks leaked: %v", f.sched.ids[scheduled:])
	}
	if got := eventTypes(f.emitted)[emitted:]; len(got) != 0 {
		t.Fatalf("events leaked: %v", got)
	}
	f.checkInvariants()
}

func TestRestrictedAndUnderCollateralizedPoolsAreSkipped(t *testing.T) {
	f := newFixture(t)
	restricted := f.spec("1", "0.5")
	restricted.Restricted = []string{"someoneelse", requester}
	f.addPool(restricted)
	f.addPool(f.spec("2", "1"))
	f.join("pool1", holderA, tokens(100_000))
	f.join("pool2", holderB, tokens(100_000))

	f.request(1, tokens(10_000))
	if p := f.pool("pool1"); p.Available != tokens(100_000) {
		t.Fatalf("restricted pool drawn from: %+v", p)
	}
	if p := f.pool("pool2"); p.Available != tokens(90_000) {
		t.Fatalf("expected pool2 used, got %+v", p)
	}

	// Drain pool2's collateral below its pledge; it must be skipped too.
	if err := f.state.Ledger().TransferInternal("collat2", "owner2", tokens(1), "drain"); err != nil {
		t.Fatalf("drain collateral: %v", err)
	}
	if err := f.state.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	f.request(2, tokens(10_000))
	if p := f.pool("pool2"); p.Available != tokens(90_000) {
		t.Fatalf("under-collateralized pool drawn from: %+v", p)
	}
}

func TestSettlementStagesRejectReplays(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(100_000))
	f.request(1, tokens(1_000))

	if err := f.engine.CollectFee(f.ctx, pool.SignedBy(requester), 1, requester); !errors.Is(err, errs.ErrDuplicateEntity) {
		t.Fatalf("expected fee replay rejected, got %v", err)
	}
	if err := f.engine.ProvideService(f.ctx, pool.Auth{}, 1); !errors.Is(err, errs.ErrDuplicateEntity) {
		t.Fatalf("expected provisioning replay rejected, got %v", err)
	}
	if err := f.engine.ProvideService(f.ctx, pool.Auth{}, 99); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected unknown request, got %v", err)
	}
}

func TestRewardWithdrawal(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	f.request(1, tokens(100_000))

	if _, err := f.engine.WithdrawHolderReward(f.ctx, pool.SignedBy(holderB), holderA, "pool1"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized withdrawal, got %v", err)
	}
	paid, err := f.engine.WithdrawHolderReward(f.ctx, pool.SignedBy(holderA), holderA, "pool1")
	if err != nil || paid != tokens(500) {
		t.Fatalf("holder withdrawal paid %d err=%v", paid, err)
	}
	if _, err := f.engine.WithdrawHolderReward(f.ctx, pool.SignedBy(holderA), holderA, "pool1"); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Fatalf("expected empty reward rejected, got %v", err)
	}

	paid, err = f.engine.WithdrawOwnerReward(f.ctx, pool.SignedBy("owner1"), "owner1")
	if err != nil || paid != tokens(500) {
		t.Fatalf("owner withdrawal paid %d err=%v", paid, err)
	}
	if got := f.balance("owner1"); got != tokens(500) {
		t.Fatalf("owner balance %d", got)
	}
	if got := f.balance("rewards1"); got != 0 {
		t.Fatalf("expected reward account drained, got %d", got)
	}
	if _, err := f.engine.WithdrawOwnerReward(f.ctx, pool.SignedBy(holderA), holderA); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected non-owner to have no pools, got %v", err)
	}
}

func TestPayRewardsPaysEveryone(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(50_000))
	f.clock++
	f.join("pool1", holderB, tokens(50_000))
	f.request(1, tokens(100_000))

	if _, err := f.engine.PayRewards(f.ctx, pool.SignedBy("owner2"), "pool1", "owner2"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected foreign owner rejected, got %v", err)
	}
	paid, err := f.engine.PayRewards(f.ctx, pool.SignedBy("owner1"), "pool1", "owner1")
	if err != nil {
		t.Fatalf("pay rewards: %v", err)
	}
	if paid != tokens(1_000) {
		t.Fatalf("expected full reward paid out, got %d", paid)
	}
	if f.holder("pool1", holderA).Reward != 0 || f.holder("pool1", holderB).Reward != 0 || f.pool("pool1").OwnerReward != 0 {
		t.Fatalf("expected every reward zeroed")
	}
	if countEvents(f.emitted, pool.EventTypeRewardPaid) != 3 {
		t.Fatalf("expected three payouts, got %v", eventTypes(f.emitted))
	}
}

func TestChangePoolFee(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	if err := f.engine.ChangePoolFee(f.ctx, pool.SignedBy(holderA), "pool1", decimal.NewFromInt(2)); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected owner authority, got %v", err)
	}
	if err := f.engine.ChangePoolFee(f.ctx, pool.SignedBy("owner1"), "pool1", decimal.NewFromInt(101)); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Fatalf("expected out of range rate, got %v", err)
	}
	if err := f.engine.ChangePoolFee(f.ctx, pool.SignedBy("owner1"), "pool1", decimal.RequireFromString("0.25")); err != nil {
		t.Fatalf("change fee: %v", err)
	}
	if p := f.pool("pool1"); !p.Reward.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("unexpected rate %s", p.Reward)
	}
}

func TestTerminatePool(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	f.request(1, tokens(100_000))
	f.clock += 403
	if _, err := f.engine.UnlockTokens(f.ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if err := f.engine.TerminatePool(f.ctx, pool.SignedBy(mainPool), mainPool); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected main pool termination rejected, got %v", err)
	}
	if err := f.engine.TerminatePool(f.ctx, pool.SignedBy(holderA), "pool1"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected owner authority, got %v", err)
	}
	if err := f.engine.TerminatePool(f.ctx, pool.SignedBy("owner1"), "pool1"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	p := f.pool("pool1")
	if p.Active || p.Total != 0 || p.Available != 0 || p.OwnerReward != 0 {
		t.Fatalf("unexpected terminated pool: %+v", p)
	}
	if got := f.balance(holderA); got != tokens(600_000)+tokens(500) {
		t.Fatalf("holder balance %d", got)
	}
	if got := f.balance("owner1"); got != tokens(500) {
		t.Fatalf("owner balance %d", got)
	}
	if _, err := f.engine.Stake("collat1"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected stake released, got %v", err)
	}
	if err := f.engine.JoinPool(f.ctx, pool.SignedBy(holderB), "pool1", holderB, f.asset(tokens(1))); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected inactive pool to reject joins, got %v", err)
	}
	f.checkInvariants()
}

func TestPausedModuleStillSweeps(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	f.request(1, tokens(100_000))

	f.engine.SetPauses(nativecommon.StaticPauses{"pool": true})
	if err := f.engine.JoinPool(f.ctx, pool.SignedBy(holderB), "pool1", holderB, f.asset(tokens(1))); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused module, got %v", err)
	}
	f.clock += 403
	swept, err := f.engine.UnlockTokens(f.ctx)
	if err != nil || swept.PoolLocks != 1 {
		t.Fatalf("expected sweep while paused, got %+v err=%v", swept, err)
	}
}

func TestResetTable(t *testing.T) {
	f := newFixture(t)
	f.addPool(f.spec("1", "1"))
	f.join("pool1", holderA, tokens(500_000))
	f.request(1, tokens(100_000))

	if err := f.engine.ResetTable(f.ctx, pool.SignedBy(holderA), pool.TableRequests); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected operator authority, got %v", err)
	}
	if err := f.engine.ResetTable(f.ctx, pool.SignedBy(operator), pool.Table("bogus")); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected unknown table, got %v", err)
	}
	if err := f.engine.ResetTable(f.ctx, pool.SignedBy(operator), pool.TableRequests); err != nil {
		t.Fatalf("reset requests: %v", err)
	}
	if _, err := f.engine.Request(1); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected request table cleared, got %v", err)
	}
	if err := f.engine.ResetTable(f.ctx, pool.SignedBy(operator), pool.TableLocks); err != nil {
		t.Fatalf("reset locks: %v", err)
	}
	locks, err := f.engine.PendingLocks()
	if err != nil || len(locks) != 0 {
		t.Fatalf("expected locks cleared, got %+v err=%v", locks, err)
	}
	if countEvents(f.emitted, pool.EventTypeTableReset) != 2 {
		t.Fatalf("expected two reset events, got %v", eventTypes(f.emitted))
	}

	p := f.pool("pool1")
	if err := f.engine.DeletePool(f.ctx, pool.SignedBy(operator), p.ID); err != nil {
		t.Fatalf("delete pool: %v", err)
	}
	if _, err := f.engine.Pool("pool1"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected pool deleted, got %v", err)
	}
	if err := f.engine.DeletePool(f.ctx, pool.SignedBy(operator), p.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected second delete to fail, got %v", err)
	}
}
