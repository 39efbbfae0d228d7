package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf))

	l.Info("switch requested",
		Int("target", 10),
		String("reason", "test"),
		Bool("coalesced", false),
		Duration("timeout", 2*time.Second),
		Err(errors.New("boom")),
	)

	m := decode(t, &buf)
	if m["level"] != "info" {
		t.Errorf("level = %v, want info", m["level"])
	}
	if m["target"] != float64(10) {
		t.Errorf("target = %v, want 10", m["target"])
	}
	if m["reason"] != "test" {
		t.Errorf("reason = %v, want test", m["reason"])
	}
	if m["error"] != "boom" {
		t.Errorf("error = %v, want boom", m["error"])
	}
}

func TestZerologAdapter_CriticalDoesNotExit(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf))

	l.Critical("invariant broken", Int("target", 10))

	m := decode(t, &buf)
	if m["level"] != "fatal" {
		t.Errorf("level = %v, want fatal", m["level"])
	}
}

func TestZerologAdapter_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf)).With("switching")

	l.Warn("superseded")

	m := decode(t, &buf)
	if m["component"] != "switching" {
		t.Errorf("component = %v, want switching", m["component"])
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Info("switch requested", Int("target", 10))
	r.Critical("invariant broken", String("reason", "unknown decision"))
	r.Critical("invariant broken again")

	if got := r.Count(LevelCritical); got != 2 {
		t.Errorf("Count(critical) = %d, want 2", got)
	}
	e, ok := r.Find(LevelInfo, "switch requested")
	if !ok {
		t.Fatal("info entry not found")
	}
	if v, ok := e.Field("target"); !ok || v != 10 {
		t.Errorf("target = %v, want 10", v)
	}
	if _, ok := r.Find(LevelWarn, "switch requested"); ok {
		t.Error("found entry at wrong level")
	}
	if got := len(r.Entries()); got != 3 {
		t.Errorf("len(Entries()) = %d, want 3", got)
	}
}
