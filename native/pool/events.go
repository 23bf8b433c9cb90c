package pool

import (
	"strconv"

	"poolhost/core/types"
)

const (
	EventTypeInitialized        = "pool.initialized"
	EventTypePoolCreated        = "pool.created"
	EventTypePoolFeeChanged     = "pool.fee_changed"
	EventTypePoolTerminated     = "pool.terminated"
	EventTypePoolDeleted        = "pool.deleted"
	EventTypeHolderJoined       = "pool.holder.joined"
	EventTypeHolderLeft         = "pool.holder.left"
	EventTypeServiceRequested   = "pool.service.requested"
	EventTypeLiquidityAllocated = "pool.liquidity.allocated"
	EventTypeFeeCollected       = "pool.settlement.fee_collected"
	EventTypeServiceProvided    = "pool.settlement.service_provided"
	EventTypeLockReleased       = "pool.lock.released"
	EventTypeRewardPaid         = "pool.reward.paid"
	EventTypeTableReset         = "pool.table.reset"
)

type poolEvent struct {
	evt *types.Event
}

func (e poolEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Event exposes the typed payload carried by the envelope.
func (e poolEvent) Event() *types.Event { return e.evt }

func newPoolEvent(eventType string, p *Pool) *types.Event {
	attrs := map[string]string{}
	if p != nil {
		attrs["poolId"] = strconv.FormatUint(p.ID, 10)
		attrs["pool"] = p.Name
		attrs["owner"] = p.Owner
		attrs["reward"] = p.Reward.String()
		attrs["total"] = strconv.FormatUint(p.Total, 10)
		attrs["available"] = strconv.FormatUint(p.Available, 10)
		attrs["active"] = strconv.FormatBool(p.Active)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newHolderEvent(eventType string, h *Holder, amount uint64) *types.Event {
	attrs := map[string]string{"amount": strconv.FormatUint(amount, 10)}
	if h != nil {
		attrs["pool"] = h.Pool
		attrs["holder"] = h.Holder
		attrs["contributed"] = strconv.FormatUint(h.Contributed, 10)
		attrs["remaining"] = strconv.FormatUint(h.Remaining, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newRequestEvent(eventType string, r *ServiceRequest) *types.Event {
	attrs := map[string]string{}
	if r != nil {
		attrs["tid"] = strconv.FormatUint(r.TID, 10)
		attrs["requester"] = r.Requester
		attrs["total"] = strconv.FormatUint(r.Total, 10)
		attrs["fee"] = strconv.FormatUint(r.Fee, 10)
		attrs["reward"] = strconv.FormatUint(r.Reward, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newAllocationEvent(a *PoolAllocation, unlockAt uint64) *types.Event {
	attrs := map[string]string{}
	if a != nil {
		attrs["tid"] = strconv.FormatUint(a.TID, 10)
		attrs["poolId"] = strconv.FormatUint(a.PoolID, 10)
		attrs["pool"] = a.Pool
		attrs["amount"] = strconv.FormatUint(a.Amount, 10)
		attrs["reward"] = strconv.FormatUint(a.Reward, 10)
		attrs["unlockAt"] = strconv.FormatUint(unlockAt, 10)
	}
	return &types.Event{Type: EventTypeLiquidityAllocated, Attributes: attrs}
}

func newLockReleasedEvent(scope string, pool string, account string, amount uint64) *types.Event {
	attrs := map[string]string{
		"scope":  scope,
		"pool":   pool,
		"amount": strconv.FormatUint(amount, 10),
	}
	if account != "" {
		attrs["holder"] = account
	}
	return &types.Event{Type: EventTypeLockReleased, Attributes: attrs}
}

func newRewardPaidEvent(pool, account, role string, amount uint64) *types.Event {
	return &types.Event{Type: EventTypeRewardPaid, Attributes: map[string]string{
		"pool":    pool,
		"account": account,
		"role":    role,
		"amount":  strconv.FormatUint(amount, 10),
	}}
}

func newTableResetEvent(table Table) *types.Event {
	return &types.Event{Type: EventTypeTableReset, Attributes: map[string]string{"table": string(table)}}
}
