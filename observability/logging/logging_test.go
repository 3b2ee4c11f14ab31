package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"dinechain/core/events"
)

func TestLoggerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "dined", "test", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("hello", Mask("token", "secret"), Mask("method", "dine_pay"), Mask("rpc_token", ""))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["message"] != "hello" || line["severity"] != "INFO" || line["service"] != "dined" || line["env"] != "test" {
		t.Fatalf("unexpected log line %v", line)
	}
	if line["token"] != Redacted || line["method"] != "dine_pay" {
		t.Fatalf("redaction not applied: %v", line)
	}
	if v, ok := line["rpc_token"]; !ok || v != "" {
		t.Fatalf("empty secret should be logged as empty, got %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("missing timestamp")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, " WARN ": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestMaskAuthorization(t *testing.T) {
	if got := MaskAuthorization(" Bearer abc.def "); got != "Bearer "+Redacted {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskAuthorization("opaque"); got != Redacted {
		t.Fatalf("unexpected mask %q", got)
	}
	if MaskAuthorization("  ") != "" {
		t.Fatalf("empty header should stay empty")
	}
}

func TestPublicLedgerKeys(t *testing.T) {
	for _, key := range []string{"tx_hash", " Restaurant ", "chain_id"} {
		if !Public(key) {
			t.Fatalf("%q should be public", key)
		}
	}
	for _, key := range []string{"authorization", "jwt_secret", "passphrase"} {
		if Public(key) {
			t.Fatalf("%q must be masked", key)
		}
	}
}

func TestEventLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "dined", "", slog.LevelInfo)
	EventLogger(logger).Emit(events.RestaurantRegistered{PlaceID: "place-1", Sequence: 4})
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["type"] != events.TypeRestaurantRegistered || line["placeId"] != "place-1" || line["sequence"] != "4" {
		t.Fatalf("unexpected event line %v", line)
	}
}
