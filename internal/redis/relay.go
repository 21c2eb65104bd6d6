// Package redis relays game-started events between server instances over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/game-lobby/internal/config"
	"github.com/game-lobby/internal/domain"
)

// Relay publishes game-started events to a Redis channel and feeds events received on it back
// to the local hub.
type Relay struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRelay connects to Redis and returns a relay bound to channel
func NewRelay(ctx context.Context, cfg *config.RedisConfig, channel string, logger *slog.Logger) (*Relay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Relay{
		client:  client,
		channel: channel,
		logger:  logger,
	}, nil
}

// Close closes the Redis connection
func (r *Relay) Close() error {
	return r.client.Close()
}

// Publish sends the event to every subscribed instance
func (r *Relay) Publish(ctx context.Context, evt domain.GameStarted) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", r.channel, err)
	}
	return nil
}

// Run subscribes to the channel and hands every valid event to deliver until ctx is done.
func (r *Relay) Run(ctx context.Context, deliver func(domain.GameStarted) int) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	r.logger.Info("relay subscribed", "channel", r.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping", "channel", r.channel)
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("relay subscription closed")
			}
			evt, err := decodeEvent(msg.Payload)
			if err != nil {
				r.logger.Warn("ignoring relay message", "channel", msg.Channel, "error", err)
				continue
			}
			deliver(evt)
		}
	}
}

func decodeEvent(payload string) (domain.GameStarted, error) {
	var evt domain.GameStarted
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return evt, fmt.Errorf("decoding event: %w", err)
	}
	if evt.Type != domain.EventGameStarted {
		return evt, fmt.Errorf("unexpected event type %q", evt.Type)
	}
	if evt.RoomID == "" {
		return evt, errors.New("event without room id")
	}
	return evt, nil
}
