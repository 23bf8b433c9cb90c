package pool

// Auth is the set of accounts that signed an action.
type Auth struct {
	signers map[string]struct{}
}

// SignedBy builds an Auth for the supplied accounts.
func SignedBy(accounts ...string) Auth {
	set := make(map[string]struct{}, len(accounts))
	for _, account := range accounts {
		if account != "" {
			set[account] = struct{}{}
		}
	}
	return Auth{signers: set}
}

// Signed reports whether account is among the signers.
func (a Auth) Signed(account string) bool {
	_, ok := a.signers[account]
	return ok
}
