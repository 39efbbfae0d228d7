package usercoord_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bft-labs/usercoord"
	"github.com/bft-labs/usercoord/internal/adapters/memory"
	"github.com/bft-labs/usercoord/internal/domain"
	core "github.com/bft-labs/usercoord/pkg/usercoord"
)

func TestNew_RequiresPorts(t *testing.T) {
	_, err := usercoord.New(usercoord.DefaultConfig())
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestNew_WithConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	svc, err := usercoord.New(usercoord.DefaultConfig(),
		core.WithIdentityStore(memory.NewIdentityStore()),
		core.WithSessionManager(memory.NewSessionManager(domain.SystemUser)),
		core.WithLogger(usercoord.ConsoleLogger(&buf, zerolog.InfoLevel)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected log output")
	}
}
