package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"poolhost/core/state"
	"poolhost/gateway/middleware"
	"poolhost/gateway/routes"
	"poolhost/native/pool"
	"poolhost/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "poolctl-test-secret-01"

// resetGlobals restores the package-level flags touched by run.
func resetGlobals(t *testing.T) {
	t.Helper()
	endpoint, token, file := apiEndpoint, apiToken, secretFile
	apiToken, secretFile = "", ""
	t.Cleanup(func() {
		apiEndpoint, apiToken, secretFile = endpoint, token, file
	})
}

func runCLI(args ...string) (int, string, string) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	exit := run(args, stdout, stderr)
	return exit, stdout.String(), stderr.String()
}

func TestCommandArgValidation(t *testing.T) {
	resetGlobals(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected API call %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()
	apiEndpoint = srv.URL

	cases := []struct {
		name       string
		args       []string
		wantStderr string
	}{
		{name: "pool_missing_name", args: []string{"pool"}, wantStderr: "Error: --name is required\n"},
		{name: "holder_missing_flags", args: []string{"holder"}, wantStderr: "Error: --holder is required\nError: --pool is required\n"},
		{name: "join_missing_flags", args: []string{"join", "--pool", "pool1"}, wantStderr: "Error: --holder is required\nError: --tokens is required\n"},
		{name: "request_bad_tid", args: []string{"request", "--tid", "abc"}, wantStderr: "Error: invalid --tid \"abc\"\n"},
		{name: "delete_bad_id", args: []string{"delete-pool", "--id", "-1", "--signer", "aim"}, wantStderr: "Error: invalid --id \"-1\"\n"},
		{name: "positional", args: []string{"pools", "extra"}, wantStderr: "Error: unexpected positional arguments\n"},
		{name: "events_negative_limit", args: []string{"events", "--limit", "-2"}, wantStderr: "Error: --limit must not be negative\n"},
		{name: "action_without_credentials", args: []string{"unlock"}, wantStderr: "Error: --signer or --token is required\n"},
		{name: "token_missing_signer", args: []string{"token"}, wantStderr: "Error: --signer is required\n"},
		{name: "global_missing_value", args: []string{"pools", "--api"}, wantStderr: "Error: missing value for --api\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exit, stdout, stderr := runCLI(tc.args...)
			if exit != 1 {
				t.Fatalf("unexpected exit code: got %d, want 1", exit)
			}
			if stdout != "" {
				t.Fatalf("expected empty stdout, got %q", stdout)
			}
			if stderr != tc.wantStderr {
				t.Fatalf("stderr mismatch\n--- got ---\n%q\n--- want ---\n%q", stderr, tc.wantStderr)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	resetGlobals(t)
	exit, _, stderr := runCLI("frobnicate")
	require.Equal(t, 1, exit)
	require.True(t, strings.HasPrefix(stderr, "Error: unknown command \"frobnicate\"\n"))
	require.Contains(t, stderr, "Usage:")
}

func TestTokenCommandMintsAcceptedToken(t *testing.T) {
	resetGlobals(t)
	t.Setenv(adminSecretEnv, testSecret)
	fixed := time.Now().Truncate(time.Second)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	exit, stdout, stderr := runCLI("token", "--signer", "owner1", "--signer", "collat1", "--issuer", "poolhost", "--ttl", "5m")
	require.Equal(t, 0, exit, stderr)
	token := strings.TrimSpace(stdout)

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	require.Equal(t, "owner1", claims["sub"])
	require.Equal(t, "poolhost", claims["iss"])
	require.Equal(t, float64(fixed.Add(5*time.Minute).Unix()), claims["exp"])

	auth := middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: testSecret, Issuer: "poolhost"}, nil)
	var seen []string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.Signers(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/unlock", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, []string{"owner1", "collat1"}, seen)
}

func TestMintTokenRejectsNonPositiveTTL(t *testing.T) {
	_, err := mintToken(testSecret, tokenOptions{signers: []string{"aim"}})
	require.Error(t, err)
}

func TestQueryRendersAPIErrors(t *testing.T) {
	resetGlobals(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/accounts/holder1/balance":
			_, _ = w.Write([]byte(`{"account":"holder1","balance":"10.0000 AIM"}`))
		case "/v1/events":
			assert.Equal(t, "pool=pool1&type=pool.joined", r.URL.RawQuery)
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"pool missing: not found","kind":"not_found"}`))
		}
	}))
	defer srv.Close()

	exit, stdout, stderr := runCLI("--api", srv.URL, "balance", "--account", "holder1")
	require.Equal(t, 0, exit, stderr)
	require.Contains(t, stdout, `"balance": "10.0000 AIM"`)

	exit, stdout, _ = runCLI("events", "--api="+srv.URL, "--type", "pool.joined", "--pool", "pool1")
	require.Equal(t, 0, exit)
	require.Equal(t, "[]\n", stdout)

	exit, stdout, stderr = runCLI("--api", srv.URL, "pool", "--name", "missing")
	require.Equal(t, 1, exit)
	require.Empty(t, stdout)
	require.Equal(t, "API error 404 (not_found): pool missing: not found\n", stderr)
}

func TestActionSendsProvidedToken(t *testing.T) {
	resetGlobals(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/admin/pools/3", r.URL.Path)
		assert.Equal(t, "Bearer preset-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	exit, stdout, stderr := runCLI("--api", srv.URL, "--token", "preset-token", "delete-pool", "--id", "3")
	require.Equal(t, 0, exit, stderr)
	require.Equal(t, "ok\n", stdout)
}

func newEngineServer(t *testing.T) *httptest.Server {
	t.Helper()
	params := pool.DefaultParams()
	mgr := state.NewManager(storage.NewMemDB(), params.Symbol)
	ledger := mgr.Ledger()
	for _, name := range []string{"aim", "escrow.aim", "mainpool.aim", "requester1", "holder1", "pool1", "owner1", "collat1", "rewards1"} {
		require.NoError(t, ledger.CreateAccount(name, 1))
	}
	require.NoError(t, ledger.Issue("mainpool.aim", 1_000_000*10_000))
	require.NoError(t, ledger.Issue("requester1", 100_000*10_000))
	require.NoError(t, ledger.Issue("holder1", 600_000*10_000))
	require.NoError(t, ledger.Issue("collat1", 2_000_000*10_000))
	require.NoError(t, mgr.Commit())

	engine, err := pool.NewEngine(params)
	require.NoError(t, err)
	engine.SetState(mgr)
	require.NoError(t, engine.Initialize(context.Background(), pool.SignedBy("aim")))

	handler, err := routes.New(routes.Config{
		Engine:        engine,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: testSecret}, nil),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestLifecycleAgainstDaemonRoutes(t *testing.T) {
	resetGlobals(t)
	t.Setenv(adminSecretEnv, testSecret)
	srv := newEngineServer(t)
	apiEndpoint = srv.URL

	exit, stdout, stderr := runCLI("add-pool", "--signer", "owner1",
		"--name", "pool1", "--owner", "owner1", "--collateral", "collat1",
		"--reward-account", "rewards1", "--reward", "1",
		"--owner-share", "50", "--holder-share", "50",
		"--collateral-amount", "2000000.0000 AIM")
	require.Equal(t, 0, exit, stderr)
	require.Contains(t, stdout, `"lockSeconds": 403`)

	exit, _, stderr = runCLI("join", "--signer", "owner1", "--pool", "pool1", "--holder", "holder1", "--tokens", "500000.0000 AIM")
	require.Equal(t, 1, exit)
	require.Contains(t, stderr, "API error 403 (unauthorized)")

	exit, stdout, stderr = runCLI("join", "--signer", "holder1", "--pool", "pool1", "--holder", "holder1", "--tokens", "500000.0000 AIM")
	require.Equal(t, 0, exit, stderr)
	require.Equal(t, "ok\n", stdout)

	exit, stdout, stderr = runCLI("request-service", "--signer", "requester1", "--tid", "1", "--requester", "requester1", "--tokens", "100000.0000 AIM")
	require.Equal(t, 0, exit, stderr)
	require.Contains(t, stdout, `"reward": "1000.0000 AIM"`)

	exit, stdout, stderr = runCLI("holder", "--pool", "pool1", "--holder", "holder1")
	require.Equal(t, 0, exit, stderr)
	require.Contains(t, stdout, `"remaining": "400000.0000 AIM"`)

	exit, _, stderr = runCLI("leave", "--signer", "holder1", "--pool", "pool1", "--holder", "holder1")
	require.Equal(t, 1, exit)
	require.Contains(t, stderr, "API error 409 (tokens_locked)")

	exit, stdout, stderr = runCLI("withdraw-reward", "--signer", "holder1", "--pool", "pool1", "--holder", "holder1")
	require.Equal(t, 0, exit, stderr)
	require.Contains(t, stdout, `"paid": "500.0000 AIM"`)
}
