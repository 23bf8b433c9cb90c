package routes

import (
	"poolhost/core/types"
	"poolhost/native/pool"
	"poolhost/storage/eventlog"
)

type poolView struct {
	ID               uint64   `json:"id"`
	Name             string   `json:"name"`
	Owner            string   `json:"owner"`
	Collateral       string   `json:"collateral"`
	RewardAccount    string   `json:"rewardAccount"`
	Reward           string   `json:"reward"`
	Private          bool     `json:"private"`
	OwnerShare       string   `json:"ownerShare"`
	HolderShare      string   `json:"holderShare"`
	CollateralAmount string   `json:"collateralAmount"`
	Total            string   `json:"total"`
	Available        string   `json:"available"`
	OwnerReward      string   `json:"ownerReward"`
	LockStart        uint64   `json:"lockStart"`
	LockSeconds      uint64   `json:"lockSeconds"`
	CreatedAt        uint64   `json:"createdAt"`
	Active           bool     `json:"active"`
	Restricted       []string `json:"restricted,omitempty"`
}

type holderView struct {
	ID          uint64 `json:"id"`
	Pool        string `json:"pool"`
	Holder      string `json:"holder"`
	Contributed string `json:"contributed"`
	Remaining   string `json:"remaining"`
	Reward      string `json:"reward"`
	LastUsedAt  uint64 `json:"lastUsedAt"`
	Active      bool   `json:"active"`
}

type requestView struct {
	TID             uint64 `json:"tid"`
	Requester       string `json:"requester"`
	FeePaid         bool   `json:"feePaid"`
	ServiceProvided bool   `json:"serviceProvided"`
	Total           string `json:"total"`
	Fee             string `json:"fee"`
	Reward          string `json:"reward"`
	CreatedAt       uint64 `json:"createdAt"`
}

type lockView struct {
	Pool     string `json:"pool"`
	Amount   string `json:"amount"`
	UnlockAt uint64 `json:"unlockAt"`
}

type eventView struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	Pool       string            `json:"pool,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  int64             `json:"createdAt"`
}

type formatter struct {
	symbol types.Symbol
}

func (f formatter) amount(raw uint64) string {
	return types.NewAsset(raw, f.symbol).String()
}

func (f formatter) pool(p *pool.Pool) poolView {
	return poolView{
		ID:               p.ID,
		Name:             p.Name,
		Owner:            p.Owner,
		Collateral:       p.Collateral,
		RewardAccount:    p.RewardAccount,
		Reward:           p.Reward.String(),
		Private:          p.Private,
		OwnerShare:       p.OwnerShare.String(),
		HolderShare:      p.HolderShare.String(),
		CollateralAmount: f.amount(p.CollateralAmount),
		Total:            f.amount(p.Total),
		Available:        f.amount(p.Available),
		OwnerReward:      f.amount(p.OwnerReward),
		LockStart:        p.LockStart,
		LockSeconds:      p.LockSeconds,
		CreatedAt:        p.CreatedAt,
		Active:           p.Active,
		Restricted:       p.Restricted,
	}
}

func (f formatter) holder(h *pool.Holder) holderView {
	return holderView{
		ID:          h.ID,
		Pool:        h.Pool,
		Holder:      h.Holder,
		Contributed: f.amount(h.Contributed),
		Remaining:   f.amount(h.Remaining),
		Reward:      f.amount(h.Reward),
		LastUsedAt:  h.LastUsedAt,
		Active:      h.Active,
	}
}

func (f formatter) request(r *pool.ServiceRequest) requestView {
	return requestView{
		TID:             r.TID,
		Requester:       r.Requester,
		FeePaid:         r.FeePaid,
		ServiceProvided: r.ServiceProvided,
		Total:           f.amount(r.Total),
		Fee:             f.amount(r.Fee),
		Reward:          f.amount(r.Reward),
		CreatedAt:       r.CreatedAt,
	}
}

func (f formatter) lock(l *pool.PoolLock) lockView {
	return lockView{Pool: l.Pool, Amount: f.amount(l.Amount), UnlockAt: l.UnlockAt}
}

func eventFromRecord(r eventlog.Record) eventView {
	attrs, err := r.Decode()
	if err != nil {
		attrs = nil
	}
	return eventView{
		ID:         r.ID,
		Type:       r.Type,
		Pool:       r.Pool,
		Attributes: attrs,
		CreatedAt:  r.CreatedAt.Unix(),
	}
}
