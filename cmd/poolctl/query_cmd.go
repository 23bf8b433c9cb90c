package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type command func(args []string, stdout, stderr io.Writer) int

var queryCommands = map[string]command{
	"pools":   runPoolsCommand,
	"pool":    runPoolCommand,
	"holders": runHoldersCommand,
	"holder":  runHolderCommand,
	"request": runRequestCommand,
	"stake":   runStakeCommand,
	"locks":   runLocksCommand,
	"balance": runBalanceCommand,
	"events":  runEventsCommand,
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags parses args and checks that every named string flag is set.
func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer, required map[string]*string) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	ok := true
	// VisitAll walks flags in name order, keeping the messages stable.
	fs.VisitAll(func(f *flag.Flag) {
		value, tracked := required[f.Name]
		if !tracked {
			return
		}
		*value = strings.TrimSpace(*value)
		if *value == "" {
			fmt.Fprintf(stderr, "Error: --%s is required\n", f.Name)
			ok = false
		}
	})
	return ok
}

func query(path string, stdout, stderr io.Writer) int {
	result, err := callAPI(http.MethodGet, path, nil, "")
	if err != nil {
		return handleAPIError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runPoolsCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pools", stderr)
	if !parseFlags(fs, args, stderr, nil) {
		return 1
	}
	return query("/pools", stdout, stderr)
}

func runPoolCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pool", stderr)
	name := fs.String("name", "", "Pool account name")
	if !parseFlags(fs, args, stderr, map[string]*string{"name": name}) {
		return 1
	}
	return query("/pools/"+pathEscape(*name), stdout, stderr)
}

func runHoldersCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("holders", stderr)
	poolName := fs.String("pool", "", "Pool account name")
	if !parseFlags(fs, args, stderr, map[string]*string{"pool": poolName}) {
		return 1
	}
	return query("/pools/"+pathEscape(*poolName)+"/holders", stdout, stderr)
}

func runHolderCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("holder", stderr)
	poolName := fs.String("pool", "", "Pool account name")
	holder := fs.String("holder", "", "Holder account name")
	if !parseFlags(fs, args, stderr, map[string]*string{"pool": poolName, "holder": holder}) {
		return 1
	}
	return query("/pools/"+pathEscape(*poolName)+"/holders/"+pathEscape(*holder), stdout, stderr)
}

func runRequestCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("request", stderr)
	tid := fs.String("tid", "", "Service request id")
	if !parseFlags(fs, args, stderr, map[string]*string{"tid": tid}) {
		return 1
	}
	if _, err := strconv.ParseUint(*tid, 10, 64); err != nil {
		fmt.Fprintf(stderr, "Error: invalid --tid %q\n", *tid)
		return 1
	}
	return query("/requests/"+*tid, stdout, stderr)
}

func runStakeCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("stake", stderr)
	collateral := fs.String("collateral", "", "Collateral account name")
	if !parseFlags(fs, args, stderr, map[string]*string{"collateral": collateral}) {
		return 1
	}
	return query("/stakes/"+pathEscape(*collateral), stdout, stderr)
}

func runLocksCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("locks", stderr)
	if !parseFlags(fs, args, stderr, nil) {
		return 1
	}
	return query("/locks", stdout, stderr)
}

func runBalanceCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	account := fs.String("account", "", "Account name")
	if !parseFlags(fs, args, stderr, map[string]*string{"account": account}) {
		return 1
	}
	return query("/accounts/"+pathEscape(*account)+"/balance", stdout, stderr)
}

func runEventsCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	eventType := fs.String("type", "", "Only events of this type")
	poolName := fs.String("pool", "", "Only events for this pool")
	limit := fs.Int("limit", 0, "Maximum number of events")
	if !parseFlags(fs, args, stderr, nil) {
		return 1
	}
	if *limit < 0 {
		fmt.Fprintln(stderr, "Error: --limit must not be negative")
		return 1
	}
	values := url.Values{}
	if v := strings.TrimSpace(*eventType); v != "" {
		values.Set("type", v)
	}
	if v := strings.TrimSpace(*poolName); v != "" {
		values.Set("pool", v)
	}
	if *limit > 0 {
		values.Set("limit", strconv.Itoa(*limit))
	}
	path := "/events"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return query(path, stdout, stderr)
}
