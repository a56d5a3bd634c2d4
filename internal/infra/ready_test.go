package infra

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestWaitReady_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := waitReady(context.Background(), "fake", func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestWaitReady_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waitReady(ctx, "fake", func(context.Context) error { return errors.New("down") })
	if err == nil || !strings.Contains(err.Error(), "fake not ready") {
		t.Fatalf("expected not-ready error, got %v", err)
	}
}

func TestNewFirebaseDB_RequiresURL(t *testing.T) {
	if _, err := NewFirebaseDB(context.Background(), FirebaseOptions{}); err == nil {
		t.Fatal("expected error without database url")
	}
}
