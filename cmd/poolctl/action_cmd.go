package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

var actionCommands = map[string]command{
	"add-pool":              runAddPoolCommand,
	"set-fee":               runSetFeeCommand,
	"terminate":             runTerminateCommand,
	"join":                  contributionCommand("join"),
	"lend":                  contributionCommand("lend"),
	"leave":                 runLeaveCommand,
	"withdraw-reward":       runWithdrawRewardCommand,
	"pay-rewards":           runPayRewardsCommand,
	"withdraw-owner-reward": runWithdrawOwnerRewardCommand,
	"request-service":       runRequestServiceCommand,
	"collect-fee":           runCollectFeeCommand,
	"provide":               runProvideCommand,
	"unlock":                runUnlockCommand,
	"reset-table":           runResetTableCommand,
	"delete-pool":           runDeletePoolCommand,
}

// actionFlagSet registers the repeatable --signer flag shared by every
// action.
func actionFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *stringListFlag) {
	fs := newFlagSet(name, stderr)
	signers := &stringListFlag{}
	fs.Var(signers, "signer", "Account authorising the action (repeatable)")
	return fs, signers
}

func act(method, path string, payload interface{}, signers *stringListFlag, stdout, stderr io.Writer) int {
	token, err := actionToken(signers.values)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, err := callAPI(method, path, payload, token)
	if err != nil {
		return handleAPIError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func parseTID(raw string, stderr io.Writer) (uint64, bool) {
	tid, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid --tid %q\n", raw)
		return 0, false
	}
	return tid, true
}

func runAddPoolCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("add-pool", stderr)
	name := fs.String("name", "", "Pool account name")
	owner := fs.String("owner", "", "Owner account")
	collateral := fs.String("collateral", "", "Collateral account")
	rewardAccount := fs.String("reward-account", "", "Account receiving pool rewards")
	reward := fs.String("reward", "", "Reward rate as a percentage")
	ownerShare := fs.String("owner-share", "", "Owner share of rewards as a percentage")
	holderShare := fs.String("holder-share", "", "Holder share of rewards as a percentage")
	amount := fs.String("collateral-amount", "", "Collateral to stake, e.g. \"2000000.0000 AIM\"")
	private := fs.Bool("private", false, "Mark the pool as private")
	var restricted stringListFlag
	fs.Var(&restricted, "restrict", "Requester barred from drawing on the pool (repeatable)")
	required := map[string]*string{
		"name":              name,
		"owner":             owner,
		"collateral":        collateral,
		"reward-account":    rewardAccount,
		"reward":            reward,
		"owner-share":       ownerShare,
		"holder-share":      holderShare,
		"collateral-amount": amount,
	}
	if !parseFlags(fs, args, stderr, required) {
		return 1
	}
	payload := map[string]interface{}{
		"name":             *name,
		"owner":            *owner,
		"collateral":       *collateral,
		"rewardAccount":    *rewardAccount,
		"reward":           *reward,
		"private":          *private,
		"ownerShare":       *ownerShare,
		"holderShare":      *holderShare,
		"collateralAmount": *amount,
		"restricted":       restricted.values,
	}
	return act(http.MethodPost, "/pools", payload, signers, stdout, stderr)
}

func runSetFeeCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("set-fee", stderr)
	poolName := fs.String("pool", "", "Pool account name")
	rate := fs.String("rate", "", "New reward rate as a percentage")
	if !parseFlags(fs, args, stderr, map[string]*string{"pool": poolName, "rate": rate}) {
		return 1
	}
	return act(http.MethodPost, "/pools/"+pathEscape(*poolName)+"/fee",
		map[string]string{"rate": *rate}, signers, stdout, stderr)
}

func runTerminateCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("terminate", stderr)
	poolName := fs.String("pool", "", "Pool account name")
	if !parseFlags(fs, args, stderr, map[string]*string{"pool": poolName}) {
		return 1
	}
	return act(http.MethodPost, "/pools/"+pathEscape(*poolName)+"/terminate", nil, signers, stdout, stderr)
}

// contributionCommand builds join and lend, which differ only in route.
func contributionCommand(name string) command {
	return func(args []string, stdout, stderr io.Writer) int {
		fs, signers := actionFlagSet(name, stderr)
		poolName := fs.String("pool", "", "Pool account name")
		holder := fs.String("holder", "", "Holder account")
		tokens := fs.String("tokens", "", "Amount to lend, e.g. \"500.0000 AIM\"")
		if !parseFlags(fs, args, stderr, map[string]*string{"pool": poolName, "holder": holder, "tokens": tokens}) {
			return 1
		}
		return act(http.MethodPost, "/pools/"+pathEscape(*poolName)+"/"+name,
			map[string]string{"holder": *holder, "tokens": *tokens}, signers, stdout, stderr)
	}
}

func runLeaveCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("leave", stderr)
	poolName := fs.String("pool", "", "Pool account name")
	holder := fs.String("holder", "", "Holder account")
	if !parseFlags(fs, args, stderr, map[string]*string{"pool": poolName, "holder": holder}) {
		return 1
	}
	return act(http.MethodPost, "/pools/"+pathEscape(*poolName)+"/leave",
		map[string]string{"holder": *holder}, signers, stdout, stderr)
}

func runWithdrawRewardCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("withdraw-reward", stderr)
	poolName := fs.String("pool", "", "Pool account name")
	holder := fs.String("holder", "", "Holder account")
	if !parseFlags(fs, args, stderr, map[string]*string{"pool": poolName, "holder": holder}) {
		return 1
	}
	return act(http.MethodPost, "/pools/"+pathEscape(*poolName)+"/rewards/withdraw",
		map[string]string{"holder": *holder}, signers, stdout, stderr)
}

func runPayRewardsCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("pay-rewards", stderr)
	poolName := fs.String("pool", "", "Pool account name")
	owner := fs.String("owner", "", "Owner account")
	if !parseFlags(fs, args, stderr, map[string]*string{"pool": poolName, "owner": owner}) {
		return 1
	}
	return act(http.MethodPost, "/pools/"+pathEscape(*poolName)+"/rewards/pay",
		map[string]string{"owner": *owner}, signers, stdout, stderr)
}

func runWithdrawOwnerRewardCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("withdraw-owner-reward", stderr)
	owner := fs.String("owner", "", "Owner account")
	if !parseFlags(fs, args, stderr, map[string]*string{"owner": owner}) {
		return 1
	}
	return act(http.MethodPost, "/owners/"+pathEscape(*owner)+"/rewards/withdraw", nil, signers, stdout, stderr)
}

func runRequestServiceCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("request-service", stderr)
	tidRaw := fs.String("tid", "", "Service request id")
	requester := fs.String("requester", "", "Requesting account")
	tokens := fs.String("tokens", "", "Amount requested, e.g. \"100000.0000 AIM\"")
	if !parseFlags(fs, args, stderr, map[string]*string{"tid": tidRaw, "requester": requester, "tokens": tokens}) {
		return 1
	}
	tid, ok := parseTID(*tidRaw, stderr)
	if !ok {
		return 1
	}
	payload := map[string]interface{}{"tid": tid, "requester": *requester, "tokens": *tokens}
	return act(http.MethodPost, "/requests", payload, signers, stdout, stderr)
}

func runCollectFeeCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("collect-fee", stderr)
	tidRaw := fs.String("tid", "", "Service request id")
	from := fs.String("from", "", "Account paying the fee")
	if !parseFlags(fs, args, stderr, map[string]*string{"tid": tidRaw, "from": from}) {
		return 1
	}
	tid, ok := parseTID(*tidRaw, stderr)
	if !ok {
		return 1
	}
	return act(http.MethodPost, fmt.Sprintf("/requests/%d/fee", tid),
		map[string]string{"from": *from}, signers, stdout, stderr)
}

func runProvideCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("provide", stderr)
	tidRaw := fs.String("tid", "", "Service request id")
	if !parseFlags(fs, args, stderr, map[string]*string{"tid": tidRaw}) {
		return 1
	}
	tid, ok := parseTID(*tidRaw, stderr)
	if !ok {
		return 1
	}
	return act(http.MethodPost, fmt.Sprintf("/requests/%d/provide", tid), nil, signers, stdout, stderr)
}

func runUnlockCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("unlock", stderr)
	if !parseFlags(fs, args, stderr, nil) {
		return 1
	}
	return act(http.MethodPost, "/unlock", nil, signers, stdout, stderr)
}

func runResetTableCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("reset-table", stderr)
	table := fs.String("table", "", "Table to clear, e.g. requests or pool-allocations")
	if !parseFlags(fs, args, stderr, map[string]*string{"table": table}) {
		return 1
	}
	return act(http.MethodPost, "/admin/tables/"+pathEscape(strings.ToLower(*table))+"/reset", nil, signers, stdout, stderr)
}

func runDeletePoolCommand(args []string, stdout, stderr io.Writer) int {
	fs, signers := actionFlagSet("delete-pool", stderr)
	idRaw := fs.String("id", "", "Pool id")
	if !parseFlags(fs, args, stderr, map[string]*string{"id": idRaw}) {
		return 1
	}
	id, err := strconv.ParseUint(*idRaw, 10, 64)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid --id %q\n", *idRaw)
		return 1
	}
	return act(http.MethodDelete, fmt.Sprintf("/admin/pools/%d", id), nil, signers, stdout, stderr)
}
