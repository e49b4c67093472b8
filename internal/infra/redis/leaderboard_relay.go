package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/logger"
)

const (
	leaderboardChannel = "leaderboard:updates"
	publishTimeout     = 2 * time.Second
)

type snapshotMessage struct {
	Origin      string             `json:"origin"`
	Leaderboard domain.Leaderboard `json:"leaderboard"`
}

// LeaderboardRelay shares ranked snapshots between instances. Publish stores
// the snapshot under leaderboard:{period} and announces it on a pub/sub
// channel; Relay forwards announcements from other instances to a local
// publisher.
type LeaderboardRelay struct {
	client *redis.Client
	ttl    time.Duration
	origin string
	log    *logger.Logger
}

func NewLeaderboardRelay(client *redis.Client, ttl time.Duration, log *logger.Logger) *LeaderboardRelay {
	if log == nil {
		log = logger.Nop()
	}
	hostname, _ := os.Hostname()
	return &LeaderboardRelay{
		client: client,
		ttl:    ttl,
		origin: fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano()),
		log:    log,
	}
}

// Publish implements app.LeaderboardPublisher. Failures are logged; the
// stored ranks stay authoritative.
func (r *LeaderboardRelay) Publish(lb domain.Leaderboard) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.publish(ctx, lb); err != nil {
		r.log.Warn("leaderboard relay publish failed", "period", lb.Period, "error", err)
	}
}

func (r *LeaderboardRelay) publish(ctx context.Context, lb domain.Leaderboard) error {
	snapshot, err := json.Marshal(lb)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(snapshotMessage{Origin: r.origin, Leaderboard: lb})
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(lb.Period), snapshot, r.ttl)
	pipe.Publish(ctx, leaderboardChannel, msg)
	_, err = pipe.Exec(ctx)
	return err
}

// Latest returns the last snapshot any instance published for period.
func (r *LeaderboardRelay) Latest(ctx context.Context, period domain.LeaderboardPeriod) (domain.Leaderboard, error) {
	raw, err := r.client.Get(ctx, snapshotKey(period)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Leaderboard{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Leaderboard{}, domain.Transient("read leaderboard snapshot", err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("decode leaderboard snapshot: %w", err)
	}
	return lb, nil
}

// Relay forwards snapshots published by other instances to local until ctx
// is cancelled.
func (r *LeaderboardRelay) Relay(ctx context.Context, local app.LeaderboardPublisher) error {
	sub := r.client.Subscribe(ctx, leaderboardChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", leaderboardChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var sm snapshotMessage
			if err := json.Unmarshal([]byte(msg.Payload), &sm); err != nil {
				r.log.Warn("dropping malformed leaderboard snapshot", "error", err)
				continue
			}
			if sm.Origin == r.origin {
				continue
			}
			local.Publish(sm.Leaderboard)
		}
	}
}

func snapshotKey(period domain.LeaderboardPeriod) string {
	return "leaderboard:" + string(period)
}
