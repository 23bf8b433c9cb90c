package errors

import stderrors "errors"

// Error kinds surfaced by engine actions. Callers match them with errors.Is;
// the concrete error carries a reason wrapped around one of these.
var (
	ErrInvalidSymbol       = stderrors.New("invalid symbol")
	ErrInvalidName         = stderrors.New("invalid name")
	ErrDuplicateEntity     = stderrors.New("duplicate entity")
	ErrNotFound            = stderrors.New("not found")
	ErrUnauthorized        = stderrors.New("unauthorized")
	ErrInsufficientBalance = stderrors.New("insufficient balance")
	ErrTokensLocked        = stderrors.New("tokens locked")
	ErrInvalidAmount       = stderrors.New("invalid amount")
	ErrRestricted          = stderrors.New("restricted")
	ErrModulePaused        = stderrors.New("module paused")
)

var kinds = []struct {
	err   error
	label string
}{
	{ErrInvalidSymbol, "invalid_symbol"},
	{ErrInvalidName, "invalid_name"},
	{ErrDuplicateEntity, "duplicate"},
	{ErrNotFound, "not_found"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrTokensLocked, "tokens_locked"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrRestricted, "restricted"},
	{ErrModulePaused, "paused"},
}

// Kind returns a stable label for the error kind wrapped by err. A nil error
// maps to "ok" and anything unrecognised to "internal".
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if stderrors.Is(err, k.err) {
			return k.label
		}
	}
	return "internal"
}
