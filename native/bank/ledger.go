package bank

import (
	"errors"
	"fmt"
	"math/big"

	errs "poolhost/core/errors"
	"poolhost/core/types"
	"poolhost/storage"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

const maxMemoBytes = 256

var errNilLedger = errors.New("bank: ledger not configured")

// Authorizer reports whether an account signed the current action.
type Authorizer interface {
	Signed(account string) bool
}

// StakeView exposes collateral pinned on an account. Authorized transfers may
// not dip into it.
type StakeView interface {
	StakedAmount(account string) (uint64, bool, error)
}

type accountRecord struct {
	Name      string
	CreatedAt uint64
}

type balanceRecord struct {
	Amount *big.Int
}

// Ledger is a single-symbol token ledger stored in a key-value view.
type Ledger struct {
	kv     storage.KV
	symbol types.Symbol
	stakes StakeView
}

// NewLedger binds a ledger for symbol to kv.
func NewLedger(kv storage.KV, symbol types.Symbol) *Ledger {
	return &Ledger{kv: kv, symbol: symbol}
}

// SetStakeView wires the collateral stake lookup used by Transfer.
func (l *Ledger) SetStakeView(view StakeView) {
	if l == nil {
		return
	}
	l.stakes = view
}

// Symbol returns the token handled by the ledger.
func (l *Ledger) Symbol() types.Symbol { return l.symbol }

func accountKey(name string) []byte {
	return []byte(fmt.Sprintf("bank/account/%s", name))
}

func (l *Ledger) balanceKey(name string) []byte {
	return []byte(fmt.Sprintf("bank/balance/%s/%s", l.symbol.Code, name))
}

// CreateAccount registers name. Registering an existing account fails.
func (l *Ledger) CreateAccount(name string, now uint64) error {
	if l == nil || l.kv == nil {
		return errNilLedger
	}
	if !types.ValidAccountName(name) {
		return fmt.Errorf("bank: invalid account name %q", name)
	}
	ok, err := l.IsAccount(name)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: account %s exists", errs.ErrDuplicateEntity, name)
	}
	encoded, err := rlp.EncodeToBytes(accountRecord{Name: name, CreatedAt: now})
	if err != nil {
		return err
	}
	return l.kv.Put(accountKey(name), encoded)
}

// IsAccount reports whether name has been registered.
func (l *Ledger) IsAccount(name string) (bool, error) {
	if l == nil || l.kv == nil {
		return false, errNilLedger
	}
	return l.kv.Has(accountKey(name))
}

// Balance returns the balance of owner. ok is false when the account has never
// held the token.
func (l *Ledger) Balance(owner string) (uint64, bool, error) {
	if l == nil || l.kv == nil {
		return 0, false, errNilLedger
	}
	bal, ok, err := l.loadBalance(owner)
	if err != nil || !ok {
		return 0, ok, err
	}
	return bal.Uint64(), true, nil
}

// Issue credits new supply to an existing account.
func (l *Ledger) Issue(to string, amount uint64) error {
	if l == nil || l.kv == nil {
		return errNilLedger
	}
	if amount == 0 || amount > types.MaxAmount {
		return fmt.Errorf("%w: issue amount must be positive", errs.ErrInvalidAmount)
	}
	if err := l.requireAccount(to); err != nil {
		return err
	}
	return l.credit(to, amount)
}

// Transfer moves amount from one account to another on behalf of from. The
// sender must have signed and may not spend collateral it has staked.
func (l *Ledger) Transfer(auth Authorizer, from, to string, amount uint64, memo string) error {
	if l == nil || l.kv == nil {
		return errNilLedger
	}
	if auth == nil || !auth.Signed(from) {
		return fmt.Errorf("%w: missing authority of %s", errs.ErrUnauthorized, from)
	}
	if err := l.validateTransfer(from, to, amount, memo); err != nil {
		return err
	}
	if l.stakes != nil {
		staked, ok, err := l.stakes.StakedAmount(from)
		if err != nil {
			return err
		}
		if ok {
			bal, _, err := l.loadBalance(from)
			if err != nil {
				return err
			}
			need := new(uint256.Int).SetUint64(staked)
			need.Add(need, uint256.NewInt(amount))
			if bal.Lt(need) {
				return fmt.Errorf("%w: %s has collateral staked", errs.ErrInsufficientBalance, from)
			}
		}
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	return l.credit(to, amount)
}

// TransferInternal moves amount without an authority or stake check. It is
// reserved for engine-initiated movements between system accounts.
func (l *Ledger) TransferInternal(from, to string, amount uint64, memo string) error {
	if l == nil || l.kv == nil {
		return errNilLedger
	}
	if err := l.validateTransfer(from, to, amount, memo); err != nil {
		return err
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	return l.credit(to, amount)
}

func (l *Ledger) validateTransfer(from, to string, amount uint64, memo string) error {
	if from == to {
		return fmt.Errorf("%w: cannot transfer to self", errs.ErrInvalidAmount)
	}
	if amount == 0 || amount > types.MaxAmount {
		return fmt.Errorf("%w: transfer amount must be positive", errs.ErrInvalidAmount)
	}
	if len(memo) > maxMemoBytes {
		return fmt.Errorf("%w: memo has more than %d bytes", errs.ErrInvalidAmount, maxMemoBytes)
	}
	return l.requireAccount(to)
}

func (l *Ledger) requireAccount(name string) error {
	ok, err := l.IsAccount(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: account %s does not exist", errs.ErrNotFound, name)
	}
	return nil
}

func (l *Ledger) loadBalance(owner string) (*uint256.Int, bool, error) {
	data, err := l.kv.Get(l.balanceKey(owner))
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec balanceRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, false, err
	}
	if rec.Amount == nil {
		return new(uint256.Int), true, nil
	}
	bal, overflow := uint256.FromBig(rec.Amount)
	if overflow {
		return nil, false, fmt.Errorf("bank: balance of %s overflows", owner)
	}
	return bal, true, nil
}

func (l *Ledger) storeBalance(owner string, bal *uint256.Int) error {
	encoded, err := rlp.EncodeToBytes(balanceRecord{Amount: bal.ToBig()})
	if err != nil {
		return err
	}
	return l.kv.Put(l.balanceKey(owner), encoded)
}

func (l *Ledger) debit(owner string, amount uint64) error {
	bal, ok, err := l.loadBalance(owner)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no balance object found for %s", errs.ErrNotFound, owner)
	}
	delta := uint256.NewInt(amount)
	if bal.Lt(delta) {
		return fmt.Errorf("%w: %s overdrawn", errs.ErrInsufficientBalance, owner)
	}
	return l.storeBalance(owner, bal.Sub(bal, delta))
}

func (l *Ledger) credit(owner string, amount uint64) error {
	bal, _, err := l.loadBalance(owner)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, uint256.NewInt(amount))
	if overflow || !sum.IsUint64() || sum.Uint64() > types.MaxAmount {
		return fmt.Errorf("%w: balance of %s would overflow", errs.ErrInvalidAmount, owner)
	}
	return l.storeBalance(owner, sum)
}
