package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dinechain/storage"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key != genesisPathEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return "env-path", true
	}

	t.Run("cli flag takes precedence", func(t *testing.T) {
		path, err := resolveGenesisPath("  cli-path ", "cfg-path", lookup)
		if err != nil {
			t.Fatalf("resolveGenesisPath returned error: %v", err)
		}
		if path != "cli-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "cli-path")
		}
	})

	t.Run("environment overrides config", func(t *testing.T) {
		path, err := resolveGenesisPath("", "cfg-path", lookup)
		if err != nil {
			t.Fatalf("resolveGenesisPath returned error: %v", err)
		}
		if path != "env-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "env-path")
		}
	})
}

func TestResolveGenesisPathConfigFile(t *testing.T) {
	emptyLookup := func(string) (string, bool) { return "", false }
	dir := t.TempDir()

	missing := filepath.Join(dir, "genesis.yaml")
	path, err := resolveGenesisPath("", missing, emptyLookup)
	if err != nil || path != "" {
		t.Fatalf("missing config genesis should resolve empty, got %q %v", path, err)
	}

	if err := os.WriteFile(missing, []byte("admin: x\n"), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	path, err = resolveGenesisPath("", missing, emptyLookup)
	if err != nil || path != missing {
		t.Fatalf("expected config genesis %q, got %q %v", missing, path, err)
	}
}

func TestExportPath(t *testing.T) {
	got := exportPath("/exports", time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC))
	if got != filepath.Join("/exports", "payments-20240501T123000Z.parquet") {
		t.Fatalf("unexpected export path %s", got)
	}
}

func TestRunReleasesResourcesWhenListenFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	dir := t.TempDir()
	genesisPath := filepath.Join(dir, "genesis.yaml")
	genesisDoc := `genesisTime: "2024-05-01T00:00:00Z"
admin: "0x00000000000000000000000000000000000000aa"
token:
  symbol: USDT
`
	if err := os.WriteFile(genesisPath, []byte(genesisDoc), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	dataDir := filepath.Join(dir, "data")
	configPath := filepath.Join(dir, "config.toml")
	configDoc := fmt.Sprintf(`RPCAddress = %q
DataDir = %q
GenesisFile = %q

[Indexer]
Enabled = true
DSN = %q
ExportDir = ""
`, busy.Addr().String(), dataDir, genesisPath, filepath.Join(dir, "index.db"))
	if err := os.WriteFile(configPath, []byte(configDoc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	err = run(configPath, "")
	if err == nil || !strings.Contains(err.Error(), "listen") {
		t.Fatalf("expected listen failure, got %v", err)
	}

	// The ledger database must be unlocked again once run returns.
	db, err := storage.NewLevelDB(filepath.Join(dataDir, "ledger"))
	if err != nil {
		t.Fatalf("ledger database still held after failed start: %v", err)
	}
	db.Close()
}
