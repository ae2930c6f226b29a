package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"messaging-service/internal/models"
)

const (
	offlineQueuePrefix  = "chat:offline:"
	notifyChannelPrefix = "chat:notify:"

	// OfflineTTL bounds how long an unseen notice survives.
	OfflineTTL = 7 * 24 * time.Hour
	// MaxQueued is the number of notices kept per receiver; older ones are trimmed.
	MaxQueued = 100
)

// Notifier hands messages to the out-of-band channel when the receiver has
// no live connection.
type Notifier interface {
	NotifyOffline(ctx context.Context, msg models.Message) error
	// Forget drops queued notices once the user is back online.
	Forget(ctx context.Context, userID int64) error
}

// Notice is what an offline receiver's queue holds.
type Notice struct {
	Type      string    `json:"type"`
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	SenderID  int64     `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisNotifier queues notices in a per-receiver list and publishes them on
// the receiver's notify channel for push workers.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func QueueKey(userID int64) string {
	return offlineQueuePrefix + strconv.FormatInt(userID, 10)
}

func ChannelName(userID int64) string {
	return notifyChannelPrefix + strconv.FormatInt(userID, 10)
}

// NotifyOffline implements Notifier.
func (n *RedisNotifier) NotifyOffline(ctx context.Context, msg models.Message) error {
	data, err := json.Marshal(Notice{
		Type:      "new_message",
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	key := QueueKey(msg.ReceiverID)
	pipe := n.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -MaxQueued, -1)
	pipe.Expire(ctx, key, OfflineTTL)
	pipe.Publish(ctx, ChannelName(msg.ReceiverID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue offline notice: %w", err)
	}
	return nil
}

// pending returns the receiver's queued notices, oldest first.
func (n *RedisNotifier) pending(ctx context.Context, userID int64) ([]Notice, error) {
	raw, err := n.rdb.LRange(ctx, QueueKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read offline queue: %w", err)
	}
	notices := make([]Notice, 0, len(raw))
	for _, item := range raw {
		var notice Notice
		if err := json.Unmarshal([]byte(item), &notice); err != nil {
			continue
		}
		notices = append(notices, notice)
	}
	return notices, nil
}

// Forget implements Notifier.
func (n *RedisNotifier) Forget(ctx context.Context, userID int64) error {
	return n.rdb.Del(ctx, QueueKey(userID)).Err()
}

// Noop drops every notice. It is used when Redis is not configured.
type Noop struct{}

func (Noop) NotifyOffline(context.Context, models.Message) error { return nil }

func (Noop) Forget(context.Context, int64) error { return nil }

var (
	_ Notifier = (*RedisNotifier)(nil)
	_ Notifier = Noop{}
)
