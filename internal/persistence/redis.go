package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ewancrowle/hpsdr-gateway/internal/session"
	"github.com/redis/go-redis/v9"
)

// sessionEvent is what RedisHook publishes on its channel; an external
// audit/admin process (out of scope for this module) subscribes to
// observe session lifecycle without the gateway depending on it.
type sessionEvent struct {
	Event          string `json:"event"` // "created" | "terminated"
	SessionID      uint64 `json:"session_id"`
	ClientEndpoint string `json:"client_endpoint"`
	Reason         string `json:"reason,omitempty"`
}

// RedisConfig configures RedisHook.
type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	Channel  string
}

// RedisHook records session lifecycle events and periodic stats
// snapshots into Redis hashes, and publishes lifecycle events on a
// pub/sub channel. Every method is nil-receiver-safe so a disabled hook
// costs nothing on the hot path.
type RedisHook struct {
	client  *redis.Client
	channel string
}

// NewRedisHook returns nil if Redis persistence is disabled, matching
// the teacher's constructor pattern of handing back a nil pointer that
// every method then guards against.
func NewRedisHook(cfg RedisConfig) *RedisHook {
	if !cfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisHook{
		client:  client,
		channel: cfg.Channel,
	}
}

func (h *RedisHook) RecordSessionCreated(s *session.Session) {
	if h == nil {
		return
	}
	ctx := context.Background()
	key := fmt.Sprintf("gateway:session:%d", s.ID)
	if err := h.client.HSet(ctx, key, map[string]interface{}{
		"client_endpoint": s.ClientEndpoint,
		"created_at":      s.CreatedAt.Unix(),
	}).Err(); err != nil {
		log.Printf("persistence: failed to record session %d created: %v", s.ID, err)
		return
	}

	h.publish(ctx, sessionEvent{Event: "created", SessionID: s.ID, ClientEndpoint: s.ClientEndpoint})
}

func (h *RedisHook) RecordSessionTerminated(id uint64, clientEndpoint, reason string) {
	if h == nil {
		return
	}
	ctx := context.Background()
	key := fmt.Sprintf("gateway:session:%d", id)
	if err := h.client.Del(ctx, key).Err(); err != nil {
		log.Printf("persistence: failed to delete session %d record: %v", id, err)
	}

	h.publish(ctx, sessionEvent{Event: "terminated", SessionID: id, ClientEndpoint: clientEndpoint, Reason: reason})
}

func (h *RedisHook) RecordStatsInterval(ctx context.Context, snapshots []session.Snapshot) error {
	if h == nil {
		return nil
	}
	for _, snap := range snapshots {
		key := fmt.Sprintf("gateway:stats:%d", snap.ID)
		if err := h.client.HSet(ctx, key, map[string]interface{}{
			"client_endpoint":   snap.ClientEndpoint,
			"radio_endpoint":    snap.RadioEndpoint,
			"packets_to_radio":  snap.PacketsToRadio,
			"packets_to_client": snap.PacketsToClient,
			"bytes_to_radio":    snap.BytesToRadio,
			"bytes_to_client":   snap.BytesToClient,
		}).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (h *RedisHook) CleanupExpired(ctx context.Context) error {
	if h == nil {
		return nil
	}
	keys, err := h.client.Keys(ctx, "gateway:stats:*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return h.client.Del(ctx, keys...).Err()
}

func (h *RedisHook) publish(ctx context.Context, evt sessionEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("persistence: failed to marshal session event: %v", err)
		return
	}
	if err := h.client.Publish(ctx, h.channel, data).Err(); err != nil {
		log.Printf("persistence: failed to publish session event: %v", err)
	}
}

// Subscribe consumes published session events until ctx is cancelled,
// logging each one. This mirrors the teacher's RedisSync.Subscribe
// consumer loop; here it exists mainly so an in-process secondary
// consumer (e.g. for debugging) has a ready-made entry point.
func (h *RedisHook) Subscribe(ctx context.Context) {
	if h == nil {
		return
	}
	pubsub := h.client.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg = m
		}
		var evt sessionEvent
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			log.Printf("persistence: failed to unmarshal session event: %v", err)
			continue
		}
		log.Printf("persistence: session %d %s (%s)", evt.SessionID, evt.Event, evt.ClientEndpoint)
	}
}
