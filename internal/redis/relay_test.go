package redis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/game-lobby/internal/config"
	"github.com/game-lobby/internal/domain"
)

func TestDecodeEvent(t *testing.T) {
	req := require.New(t)

	evt, err := decodeEvent(`{"type":"game-started","roomId":4,"game":"quiz","duration":60}`)
	req.NoError(err)
	req.Equal(domain.NewGameStarted("4", "quiz", 60), evt)

	_, err = decodeEvent(`{"type":"joined","roomId":4}`)
	req.ErrorContains(err, "unexpected event type")

	_, err = decodeEvent(`{"type":"game-started"}`)
	req.ErrorContains(err, "room id")

	_, err = decodeEvent(`garbage`)
	req.Error(err)
}

// Requires a running Redis, e.g. LOBBY_TEST_REDIS_ADDR=localhost:6379.
func TestRelay_RoundTrip(t *testing.T) {
	addr := os.Getenv("LOBBY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LOBBY_TEST_REDIS_ADDR not set")
	}
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay, err := NewRelay(ctx, &config.RedisConfig{Addr: addr}, "lobby:test:"+t.Name(), logger)
	req.NoError(err)
	defer relay.Close()

	received := make(chan domain.GameStarted, 1)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- relay.Run(runCtx, func(evt domain.GameStarted) int {
			received <- evt
			return 1
		})
	}()

	evt := domain.NewGameStarted("12", "snake", 30)
	// Publish until the subscriber is up
	req.Eventually(func() bool {
		if relay.Publish(ctx, evt) != nil {
			return false
		}
		select {
		case got := <-received:
			return got == evt
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 50*time.Millisecond)

	stop()
	req.NoError(<-done)
}
