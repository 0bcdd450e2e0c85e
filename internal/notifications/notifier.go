// Package notifications publishes access request events over Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"atrium/internal/middleware"
	"atrium/internal/models"

	"github.com/redis/go-redis/v9"
)

// EventAccessRequestDecided is the event type published when a reviewer decides.
const EventAccessRequestDecided = "access_request.decided"

// DecisionEvent is the payload published to the requester and reviewer channels.
type DecisionEvent struct {
	Type        string          `json:"type"`
	RequestID   uint            `json:"request_id"`
	ProjectID   uint            `json:"project_id"`
	RequesterID uint            `json:"requester_id"`
	PMName      string          `json:"pm_name"`
	Decision    models.Decision `json:"decision"`
	DecidedAt   time.Time       `json:"decided_at"`
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends a notification payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishReviewer sends a notification payload to a reviewer's channel.
func (n *Notifier) PublishReviewer(ctx context.Context, pmName, payload string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, ReviewerChannel(pmName), payload).Err()
}

// PublishDecision announces a decided request to both parties.
func (n *Notifier) PublishDecision(ctx context.Context, req *models.AccessRequest) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	ev := DecisionEvent{
		Type:        EventAccessRequestDecided,
		RequestID:   req.ID,
		ProjectID:   req.ProjectID,
		RequesterID: req.RequesterID,
		PMName:      req.PMName,
		Decision:    req.Decision,
	}
	if req.DecidedAt != nil {
		ev.DecidedAt = *req.DecidedAt
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := n.PublishUser(ctx, req.RequesterID, string(payload)); err != nil {
		return err
	}
	return n.PublishReviewer(ctx, req.PMName, string(payload))
}

// StartPatternSubscriber subscribes to user and reviewer channels and calls onMessage
// for each incoming message until ctx is cancelled.
func (n *Notifier) StartPatternSubscriber(ctx context.Context, onMessage func(channel string, payload string)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "notifications:user:*", "notifications:reviewer:*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in notification subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return "notifications:user:" + strconv.FormatUint(uint64(userID), 10)
}

// ReviewerChannel derives the Redis channel name for a reviewer.
func ReviewerChannel(pmName string) string {
	return "notifications:reviewer:" + pmName
}
