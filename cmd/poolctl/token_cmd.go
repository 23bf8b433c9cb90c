package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"poolhost/cmd/internal/secret"

	"github.com/golang-jwt/jwt/v5"
)

const adminSecretEnv = "POOLHOST_ADMIN_SECRET"

// now is swapped in tests.
var now = time.Now

type stringListFlag struct {
	values []string
}

func (f *stringListFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.values, ",")
}

func (f *stringListFlag) Set(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed != "" {
		f.values = append(f.values, trimmed)
	}
	return nil
}

type tokenOptions struct {
	signers  []string
	ttl      time.Duration
	issuer   string
	audience string
}

func mintToken(signingSecret string, opts tokenOptions) (string, error) {
	if len(opts.signers) == 0 {
		return "", errors.New("at least one signer is required")
	}
	if opts.ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	issued := now()
	claims := jwt.MapClaims{
		"sub":     opts.signers[0],
		"signers": opts.signers,
		"iat":     issued.Unix(),
		"exp":     issued.Add(opts.ttl).Unix(),
	}
	if opts.issuer != "" {
		claims["iss"] = opts.issuer
	}
	if opts.audience != "" {
		claims["aud"] = opts.audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingSecret))
}

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var signers stringListFlag
	fs.Var(&signers, "signer", "Account authorising the calls (repeatable)")
	ttl := fs.Duration("ttl", 15*time.Minute, "Token lifetime")
	issuer := fs.String("issuer", "", "Issuer claim expected by the daemon")
	audience := fs.String("audience", "", "Audience claim expected by the daemon")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if len(signers.values) == 0 {
		fmt.Fprintln(stderr, "Error: --signer is required")
		return 1
	}
	signingSecret, err := secret.NewSource(adminSecretEnv, secretFile).Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	token, err := mintToken(signingSecret, tokenOptions{
		signers:  signers.values,
		ttl:      *ttl,
		issuer:   strings.TrimSpace(*issuer),
		audience: strings.TrimSpace(*audience),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

// actionToken returns the --token value when present, otherwise it mints a
// short-lived token for the given signers.
func actionToken(signers []string) (string, error) {
	if apiToken != "" {
		return apiToken, nil
	}
	if len(signers) == 0 {
		return "", errors.New("--signer or --token is required")
	}
	signingSecret, err := secret.NewSource(adminSecretEnv, secretFile).Get()
	if err != nil {
		return "", err
	}
	return mintToken(signingSecret, tokenOptions{
		signers:  signers,
		ttl:      time.Minute,
		issuer:   strings.TrimSpace(os.Getenv("POOLCTL_ISSUER")),
		audience: strings.TrimSpace(os.Getenv("POOLCTL_AUDIENCE")),
	})
}
