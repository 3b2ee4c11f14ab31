package main

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dinechain/core"
	"dinechain/core/genesis"
	"dinechain/crypto"
	"dinechain/rpc"
	"dinechain/storage"
)

func startNode(t *testing.T, funded crypto.Address) string {
	t.Helper()
	doc := fmt.Sprintf(`
genesisTime: "2024-05-01T00:00:00Z"
admin: "0x00000000000000000000000000000000000000aa"
token:
  symbol: USDT
alloc:
  "%s": "5000000"
`, funded.Hex())
	spec, err := genesis.ParseSpec([]byte(doc))
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	node, err := core.NewNode(storage.NewMemDB(), spec, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	now := time.Unix(1_714_521_600, 0)
	node.SetClock(func() time.Time { return now })
	srv, err := rpc.NewServer(node, nil, rpc.ServerConfig{}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func writeKey(t *testing.T) (string, crypto.Address) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := crypto.SaveToKeystoreWithStrength(path, key, "pass", crypto.KeystoreLight); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	return path, key.PubKey().Address()
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLIRegisterPayAndQuery(t *testing.T) {
	t.Setenv(keystorePassEnv, "pass")
	restaurantKey, restaurant := writeKey(t)
	payerKey, payer := writeKey(t)
	url := startNode(t, payer)

	code, out, errOut := runCLI(t, "--rpc", url, "--key", restaurantKey, "register", "ChIJ-cli")
	if code != 0 {
		t.Fatalf("register exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, `"type": "register_restaurant"`) {
		t.Fatalf("unexpected register output %s", out)
	}

	if code, _, errOut := runCLI(t, "--rpc", url, "--key", payerKey, "approve", "2000000"); code != 0 {
		t.Fatalf("approve exit %d: %s", code, errOut)
	}
	if code, _, errOut := runCLI(t, "--rpc", url, "--key", payerKey, "pay", restaurant.String(), "1000000"); code != 0 {
		t.Fatalf("pay exit %d: %s", code, errOut)
	}

	code, out, _ = runCLI(t, "--rpc", url, "ratio", restaurant.Hex())
	if code != 0 || strings.TrimSpace(out) != "999999999999500000" {
		t.Fatalf("ratio exit %d output %q", code, out)
	}

	code, out, _ = runCLI(t, "--rpc", url, "list")
	want := fmt.Sprintf("Restaurant Address: %x, Google Map ID: ChIJ-cli, Custom Ratio: 999999999999500000", restaurant.Bytes())
	if code != 0 || strings.TrimSpace(out) != want {
		t.Fatalf("list exit %d output %q, want %q", code, out, want)
	}

	code, out, _ = runCLI(t, "--rpc", url, "--key", restaurantKey, "balance")
	if code != 0 || !strings.HasSuffix(strings.TrimSpace(out), " 1000000") {
		t.Fatalf("balance exit %d output %q", code, out)
	}

	code, out, _ = runCLI(t, "--rpc", url, "preview", restaurant.String(), "1000000")
	if code != 0 || !strings.Contains(out, `"adjustedAmount": "999999"`) {
		t.Fatalf("preview exit %d output %q", code, out)
	}

	code, _, errOut = runCLI(t, "--rpc", url, "--key", restaurantKey, "register", "ChIJ-cli")
	if code != 1 || !strings.Contains(errOut, "already registered") {
		t.Fatalf("expected already registered failure, got %d %q", code, errOut)
	}

	code, _, errOut = runCLI(t, "--rpc", url, "payments")
	if code != 1 || !strings.Contains(errOut, "indexer disabled") {
		t.Fatalf("expected indexer disabled failure, got %d %q", code, errOut)
	}

	code, _, errOut = runCLI(t, "--rpc", url, "history", restaurant.String())
	if code != 1 || !strings.Contains(errOut, "indexer disabled") {
		t.Fatalf("expected indexer disabled failure for history, got %d %q", code, errOut)
	}
}

func TestCLIAddress(t *testing.T) {
	keyFile, addr := writeKey(t)
	code, out, errOut := runCLI(t, "--key", keyFile, "address")
	if code != 0 {
		t.Fatalf("address exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, addr.String()) || !strings.Contains(out, addr.Hex()) {
		t.Fatalf("unexpected address output %q", out)
	}
}

func TestCLIUsageErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"bogus"},
		{"register"},
		{"pay", "0x0000000000000000000000000000000000000011"},
		{"transfer", "nope", "10"},
		{"preview", "0x0000000000000000000000000000000000000011", "-5"},
		{"receipt", "0x1234"},
	}
	for _, args := range cases {
		code, _, _ := runCLI(t, args...)
		if code != 2 {
			t.Fatalf("args %v: exit %d, want 2", args, code)
		}
	}
}
