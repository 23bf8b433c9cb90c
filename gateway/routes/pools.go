package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"poolhost/core/types"
	"poolhost/gateway/middleware"
	"poolhost/native/pool"
	"poolhost/storage/eventlog"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type poolRoutes struct {
	engine *pool.Engine
	events EventQuery
	logger *slog.Logger
}

func (pr *poolRoutes) mountQueries(r chi.Router) {
	r.Get("/pools", pr.listPools)
	r.Get("/pools/{name}", pr.getPool)
	r.Get("/pools/{name}/holders", pr.listHolders)
	r.Get("/pools/{name}/holders/{holder}", pr.getHolder)
	r.Get("/requests/{tid}", pr.getRequest)
	r.Get("/stakes/{collateral}", pr.getStake)
	r.Get("/locks", pr.listLocks)
	r.Get("/accounts/{account}/balance", pr.getBalance)
	r.Get("/events", pr.listEvents)
}

func (pr *poolRoutes) mountActions(r chi.Router) {
	r.Post("/pools", pr.addPool)
	r.Post("/pools/{name}/fee", pr.changeFee)
	r.Post("/pools/{name}/terminate", pr.terminatePool)
	r.Post("/pools/{name}/join", pr.joinPool)
	r.Post("/pools/{name}/lend", pr.lendMore)
	r.Post("/pools/{name}/leave", pr.leavePool)
	r.Post("/pools/{name}/rewards/withdraw", pr.withdrawHolderReward)
	r.Post("/pools/{name}/rewards/pay", pr.payRewards)
	r.Post("/owners/{owner}/rewards/withdraw", pr.withdrawOwnerReward)
	r.Post("/requests", pr.requestService)
	r.Post("/requests/{tid}/fee", pr.collectFee)
	r.Post("/requests/{tid}/provide", pr.provideService)
	r.Post("/unlock", pr.unlockTokens)
	r.Post("/admin/tables/{table}/reset", pr.resetTable)
	r.Delete("/admin/pools/{id}", pr.deletePool)
}

func (pr *poolRoutes) format() formatter {
	return formatter{symbol: pr.engine.Params().Symbol}
}

func auth(r *http.Request) pool.Auth {
	return pool.SignedBy(middleware.Signers(r.Context())...)
}

func (pr *poolRoutes) parseTokens(raw string) (types.Asset, error) {
	asset, err := types.ParseAsset(strings.TrimSpace(raw))
	if err != nil {
		return types.Asset{}, fmt.Errorf("tokens: %w", err)
	}
	return asset, nil
}

func parseUintParam(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return value, nil
}

func (pr *poolRoutes) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := pr.engine.Pools()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	f := pr.format()
	out := make([]poolView, 0, len(pools))
	for _, p := range pools {
		out = append(out, f.pool(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (pr *poolRoutes) getPool(w http.ResponseWriter, r *http.Request) {
	p, err := pr.engine.Pool(chi.URLParam(r, "name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr.format().pool(p))
}

func (pr *poolRoutes) listHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := pr.engine.Holders(chi.URLParam(r, "name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	f := pr.format()
	out := make([]holderView, 0, len(holders))
	for _, h := range holders {
		out = append(out, f.holder(h))
	}
	writeJSON(w, http.StatusOK, out)
}

func (pr *poolRoutes) getHolder(w http.ResponseWriter, r *http.Request) {
	h, err := pr.engine.Holder(chi.URLParam(r, "name"), chi.URLParam(r, "holder"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr.format().holder(h))
}

func (pr *poolRoutes) getRequest(w http.ResponseWriter, r *http.Request) {
	tid, err := parseUintParam(r, "tid")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	request, err := pr.engine.Request(tid)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr.format().request(request))
}

func (pr *poolRoutes) getStake(w http.ResponseWriter, r *http.Request) {
	stake, err := pr.engine.Stake(chi.URLParam(r, "collateral"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"collateral": stake.Collateral,
		"amount":     pr.format().amount(stake.Amount),
		"createdAt":  stake.CreatedAt,
	})
}

func (pr *poolRoutes) listLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := pr.engine.PendingLocks()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	f := pr.format()
	out := make([]lockView, 0, len(locks))
	for _, l := range locks {
		out = append(out, f.lock(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (pr *poolRoutes) getBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	balance, err := pr.engine.Balance(account)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": account, "balance": pr.format().amount(balance)})
}

func (pr *poolRoutes) listEvents(w http.ResponseWriter, r *http.Request) {
	if pr.events == nil {
		writeJSONError(w, http.StatusNotImplemented, "unavailable", fmt.Errorf("event log disabled"))
		return
	}
	query := r.URL.Query()
	filter := eventlog.Filter{Type: query.Get("type"), Pool: query.Get("pool")}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}
	records, err := pr.events.Recent(r.Context(), filter)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	out := make([]eventView, 0, len(records))
	for _, record := range records {
		out = append(out, eventFromRecord(record))
	}
	writeJSON(w, http.StatusOK, out)
}

type addPoolRequest struct {
	Name             string          `json:"name"`
	Owner            string          `json:"owner"`
	Collateral       string          `json:"collateral"`
	RewardAccount    string          `json:"rewardAccount"`
	Reward           decimal.Decimal `json:"reward"`
	Private          bool            `json:"private"`
	OwnerShare       decimal.Decimal `json:"ownerShare"`
	HolderShare      decimal.Decimal `json:"holderShare"`
	CollateralAmount string          `json:"collateralAmount"`
	Restricted       []string        `json:"restricted"`
}

func (pr *poolRoutes) addPool(w http.ResponseWriter, r *http.Request) {
	var req addPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	collateral, err := pr.parseTokens(req.CollateralAmount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	created, err := pr.engine.AddPool(r.Context(), auth(r), pool.PoolSpec{
		Name:             req.Name,
		Owner:            req.Owner,
		Collateral:       req.Collateral,
		RewardAccount:    req.RewardAccount,
		Reward:           req.Reward,
		Private:          req.Private,
		OwnerShare:       req.OwnerShare,
		HolderShare:      req.HolderShare,
		CollateralAmount: collateral,
		Restricted:       req.Restricted,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pr.format().pool(created))
}

type feeRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

func (pr *poolRoutes) changeFee(w http.ResponseWriter, r *http.Request) {
	var req feeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := pr.engine.ChangePoolFee(r.Context(), auth(r), chi.URLParam(r, "name"), req.Rate); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (pr *poolRoutes) terminatePool(w http.ResponseWriter, r *http.Request) {
	if err := pr.engine.TerminatePool(r.Context(), auth(r), chi.URLParam(r, "name")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type holderRequest struct {
	Holder string `json:"holder"`
	Tokens string `json:"tokens,omitempty"`
}

func (pr *poolRoutes) contribution(w http.ResponseWriter, r *http.Request) (holderRequest, types.Asset, bool) {
	var req holderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return req, types.Asset{}, false
	}
	tokens, err := pr.parseTokens(req.Tokens)
	if err != nil {
		writeBadRequest(w, err)
		return req, types.Asset{}, false
	}
	return req, tokens, true
}

func (pr *poolRoutes) joinPool(w http.ResponseWriter, r *http.Request) {
	req, tokens, ok := pr.contribution(w, r)
	if !ok {
		return
	}
	if err := pr.engine.JoinPool(r.Context(), auth(r), chi.URLParam(r, "name"), req.Holder, tokens); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (pr *poolRoutes) lendMore(w http.ResponseWriter, r *http.Request) {
	req, tokens, ok := pr.contribution(w, r)
	if !ok {
		return
	}
	if err := pr.engine.LendMore(r.Context(), auth(r), chi.URLParam(r, "name"), req.Holder, tokens); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (pr *poolRoutes) leavePool(w http.ResponseWriter, r *http.Request) {
	var req holderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := pr.engine.LeavePool(r.Context(), auth(r), chi.URLParam(r, "name"), req.Holder); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (pr *poolRoutes) writePaid(w http.ResponseWriter, paid uint64) {
	writeJSON(w, http.StatusOK, map[string]string{"paid": pr.format().amount(paid)})
}

func (pr *poolRoutes) withdrawHolderReward(w http.ResponseWriter, r *http.Request) {
	var req holderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	paid, err := pr.engine.WithdrawHolderReward(r.Context(), auth(r), req.Holder, chi.URLParam(r, "name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	pr.writePaid(w, paid)
}

type ownerRequest struct {
	Owner string `json:"owner"`
}

func (pr *poolRoutes) payRewards(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	paid, err := pr.engine.PayRewards(r.Context(), auth(r), chi.URLParam(r, "name"), req.Owner)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	pr.writePaid(w, paid)
}

func (pr *poolRoutes) withdrawOwnerReward(w http.ResponseWriter, r *http.Request) {
	paid, err := pr.engine.WithdrawOwnerReward(r.Context(), auth(r), chi.URLParam(r, "owner"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	pr.writePaid(w, paid)
}

type serviceRequest struct {
	TID       uint64 `json:"tid"`
	Requester string `json:"requester"`
	Tokens    string `json:"tokens"`
}

func (pr *poolRoutes) requestService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	tokens, err := pr.parseTokens(req.Tokens)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	settled, err := pr.engine.RequestService(r.Context(), auth(r), req.TID, req.Requester, tokens)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pr.format().request(settled))
}

type collectFeeRequest struct {
	From string `json:"from"`
}

func (pr *poolRoutes) collectFee(w http.ResponseWriter, r *http.Request) {
	tid, err := parseUintParam(r, "tid")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req collectFeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := pr.engine.CollectFee(r.Context(), auth(r), tid, req.From); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (pr *poolRoutes) provideService(w http.ResponseWriter, r *http.Request) {
	tid, err := parseUintParam(r, "tid")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := pr.engine.ProvideService(r.Context(), auth(r), tid); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (pr *poolRoutes) unlockTokens(w http.ResponseWriter, r *http.Request) {
	result, err := pr.engine.UnlockTokens(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	f := pr.format()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"poolLocks":      result.PoolLocks,
		"holderLocks":    result.HolderLocks,
		"poolAmount":     f.amount(result.PoolAmount),
		"holderAmount":   f.amount(result.HolderAmount),
		"hasPendingLock": result.HasPendingLock,
		"nextUnlockAt":   result.NextUnlockAt,
	})
}

func (pr *poolRoutes) resetTable(w http.ResponseWriter, r *http.Request) {
	table := pool.Table(chi.URLParam(r, "table"))
	if err := pr.engine.ResetTable(r.Context(), auth(r), table); err != nil {
		writeEngineError(w, err)
		return
	}
	pr.logger.Warn("table reset through admin api", slog.String("table", string(table)))
	w.WriteHeader(http.StatusNoContent)
}

func (pr *poolRoutes) deletePool(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := pr.engine.DeletePool(r.Context(), auth(r), id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
