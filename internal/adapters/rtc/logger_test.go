package rtc

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLoggerFactoryWritesZerolog(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)
	t.Cleanup(func() { log.Logger = prev })

	l := LoggerFactory{}.NewLogger("ice")
	l.Debugf("hidden %d", 1)
	l.Warnf("candidate %s failed", "host")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("want exactly one json line, got %q: %v", buf.String(), err)
	}
	if entry["scope"] != "ice" || entry["module"] != "pion" {
		t.Fatalf("fields = %v", entry)
	}
	if entry["message"] != "candidate host failed" || entry["level"] != "warn" {
		t.Fatalf("entry = %v", entry)
	}
}
