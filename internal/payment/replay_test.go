package payment

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestReplayGuardMarksFailedPaymentIDs(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	svc := &Service{Replay: client, ReplayTTL: time.Minute, Logger: zerolog.Nop()}
	ctx := context.Background()

	if svc.replaySeen(ctx, "pay_123") {
		t.Fatal("fresh payment id reported as seen")
	}
	svc.markReplay(ctx, "pay_123")
	if !svc.replaySeen(ctx, "pay_123") {
		t.Fatal("marked payment id not reported as seen")
	}
	if svc.replaySeen(ctx, "pay_456") {
		t.Fatal("unrelated payment id reported as seen")
	}

	mr.FastForward(2 * time.Minute)
	if svc.replaySeen(ctx, "pay_123") {
		t.Fatal("marker must expire with the TTL")
	}
}

func TestReplayGuardDegradesWithoutRedis(t *testing.T) {
	svc := &Service{Logger: zerolog.Nop()}
	ctx := context.Background()
	if svc.replaySeen(ctx, "pay_123") {
		t.Fatal("guard without redis must never block")
	}
	svc.markReplay(ctx, "pay_123") // must not panic
}
