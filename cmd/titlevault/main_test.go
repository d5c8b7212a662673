package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "memory")
	t.Setenv("LEDGER_MODE", "local")
	t.Setenv("CONTENT_STORE", "fs")
	t.Setenv("CONTENT_DIR", t.TempDir())
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("TITLEVAULT_PROFILE", "")
	t.Setenv("BLOCKCHAIN_PRIVATE_KEY", "")
	t.Setenv("AUDIT_FILE", "")
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"titlevault"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Help(t *testing.T) {
	code, out, _ := run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "push-pending")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := run("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")
}

func TestRun_DefaultsToServe(t *testing.T) {
	orig := startServer
	defer func() { startServer = orig }()

	var got []string
	startServer = func(args []string, _, _ io.Writer) int {
		got = args
		return 0
	}
	code, _, _ := run()
	assert.Equal(t, 0, code)
	assert.Nil(t, got)

	code, _, _ = run("--addr", ":0")
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"--addr", ":0"}, got)
}

func TestRun_InvalidConfig(t *testing.T) {
	setEnv(t)
	t.Setenv("LEDGER_MODE", "carrier-pigeon")

	code, _, errOut := run("sync")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "LEDGER_MODE")
}

func TestRun_IssueCode(t *testing.T) {
	setEnv(t)

	code, _, _ := run("issue-code")
	assert.Equal(t, 2, code)

	code, out, errOut := run("issue-code", "--wallet", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "--json")
	require.Equal(t, 0, code, errOut)
	var c map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Len(t, c["code"], 8)
	assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", c["wallet_address"])

	code, _, _ = run("issue-code", "--wallet", "not-a-wallet")
	assert.Equal(t, 1, code)
}

func TestRun_IssueCodeWritesAuditFile(t *testing.T) {
	setEnv(t)
	path := filepath.Join(t.TempDir(), "audit.log")
	t.Setenv("AUDIT_FILE", path)

	code, _, errOut := run("issue-code", "--wallet", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.Equal(t, 0, code, errOut)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AUDIT: ")
	assert.Contains(t, string(data), `"action":"transfer_code_issued"`)
}

func TestRun_SyncAndPushPending(t *testing.T) {
	setEnv(t)

	code, out, errOut := run("sync", "--json")
	require.Equal(t, 0, code, errOut)
	assert.JSONEq(t, `{"changed": 0}`, out)

	code, out, errOut = run("push-pending", "--json")
	require.Equal(t, 0, code, errOut)
	assert.JSONEq(t, `{"pushed": 0, "failed": []}`, out)
}

func TestRun_Health(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	code, out, _ := run("health", "--url", ok.URL)
	assert.Equal(t, 0, code)
	assert.Equal(t, "OK\n", out)

	code, _, errOut := run("health", "--url", down.URL)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "503")
}

func TestLocalSigner(t *testing.T) {
	addr, err := localSigner("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", addr)

	addr, err = localSigner("")
	require.NoError(t, err)
	assert.Empty(t, addr)

	_, err = localSigner("zz")
	assert.Error(t, err)
}
