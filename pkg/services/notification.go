package services

import (
	"context"
	"encoding/json"
	"sync"

	"socialclient/pkg/notify"
	"socialclient/pkg/storage"

	"github.com/ServiceWeaver/weaver"
	"github.com/redis/go-redis/v9"
)

// NotificationService keeps the notifications raised by a viewer's
// session until the viewer's client fetches them.
type NotificationService interface {
	Push(ctx context.Context, viewerID string, n notify.Notification) error
	Drain(ctx context.Context, viewerID string) ([]notify.Notification, error)
}

type notificationService struct {
	weaver.Implements[NotificationService]
	weaver.WithConfig[notificationServiceOptions]
	redisClient *redis.Client

	// used when no redis address is configured
	mu      sync.Mutex
	centers map[string]*notify.Center
}

type notificationServiceOptions struct {
	RedisAddr string `toml:"redis_address"`
	RedisPort int    `toml:"redis_port"`
}

func notificationsKey(viewerID string) string {
	return "notifications:" + viewerID
}

func (n *notificationService) Init(ctx context.Context) error {
	logger := n.Logger(ctx)
	n.redisClient = storage.RedisClient(n.Config().RedisAddr, n.Config().RedisPort)
	n.centers = make(map[string]*notify.Center)
	logger.Info("notification service running!", "redis_addr", n.Config().RedisAddr, "redis_port", n.Config().RedisPort)
	return nil
}

func (n *notificationService) center(viewerID string) *notify.Center {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.centers[viewerID]
	if !ok {
		c = notify.NewCenter()
		n.centers[viewerID] = c
	}
	return c
}

func (n *notificationService) Push(ctx context.Context, viewerID string, notification notify.Notification) error {
	logger := n.Logger(ctx)
	logger.Debug("entering Push", "viewer", viewerID, "title", notification.Title)
	if n.redisClient == nil {
		n.center(viewerID).Add(notification)
		return nil
	}
	value, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	key := notificationsKey(viewerID)
	_, err = n.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, value)
		pipe.LTrim(ctx, key, -notify.CENTER_CAPACITY, -1)
		return nil
	})
	if err != nil {
		logger.Error("error queueing notification", "viewer", viewerID, "msg", err.Error())
	}
	return err
}

func (n *notificationService) Drain(ctx context.Context, viewerID string) ([]notify.Notification, error) {
	logger := n.Logger(ctx)
	if n.redisClient == nil {
		return n.center(viewerID).Drain(), nil
	}
	key := notificationsKey(viewerID)
	var values *redis.StringSliceCmd
	_, err := n.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		values = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		logger.Error("error draining notifications", "viewer", viewerID, "msg", err.Error())
		return nil, err
	}
	var out []notify.Notification
	for _, value := range values.Val() {
		var notification notify.Notification
		if err := json.Unmarshal([]byte(value), &notification); err != nil {
			logger.Error("error parsing notification from redis", "msg", err.Error())
			continue
		}
		out = append(out, notification)
	}
	return out, nil
}
