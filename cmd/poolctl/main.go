package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var apiEndpoint = defaultAPIEndpoint() // overridden by POOLCTL_API or --api
var apiToken = os.Getenv("POOLCTL_TOKEN")
var secretFile string

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	name, rest := args[0], args[1:]
	switch name {
	case "token":
		return runTokenCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	}
	if handler, ok := queryCommands[name]; ok {
		return handler(rest, stdout, stderr)
	}
	if handler, ok := actionCommands[name]; ok {
		return handler(rest, stdout, stderr)
	}
	fmt.Fprintf(stderr, "Error: unknown command %q\n", name)
	fmt.Fprintln(stderr, usage())
	return 1
}

func defaultAPIEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("POOLCTL_API")); v != "" {
		return v
	}
	return "http://127.0.0.1:8090"
}

// applyGlobalFlags strips --api, --token and --secret-file from anywhere in
// the argument list.
func applyGlobalFlags(args []string) ([]string, error) {
	globals := map[string]*string{
		"--api":         &apiEndpoint,
		"--token":       &apiToken,
		"--secret-file": &secretFile,
	}
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		target, ok := globals[name]
		if !ok {
			out = append(out, arg)
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", name)
			}
			value = args[i+1]
			i++
		}
		*target = strings.TrimSpace(value)
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  poolctl [--api URL] [--token JWT] [--secret-file PATH] <command> [flags]

Queries:
  pools                  List every pool
  pool                   Show one pool
  holders                List the holders of a pool
  holder                 Show one holder position
  request                Show a service request
  stake                  Show the stake for a collateral account
  locks                  List pending token locks
  balance                Show an account balance
  events                 List recorded engine events

Actions (require --signer or --token):
  add-pool               Register a new lending pool
  set-fee                Change a pool reward rate
  terminate              Terminate a pool
  join                   Join a pool with tokens
  lend                   Lend more tokens to a pool
  leave                  Leave a pool and reclaim tokens
  withdraw-reward        Withdraw a holder reward
  pay-rewards            Pay out the rewards of an owner's pool
  withdraw-owner-reward  Withdraw the accrued owner reward
  request-service        Request a service backed by the pools
  collect-fee            Collect the fee for a service request
  provide                Mark a service request as provided
  unlock                 Release every due token lock
  reset-table            Clear an engine table (operator only)
  delete-pool            Delete a pool by id (operator only)

Other:
  token                  Mint an admin bearer token`)
}
