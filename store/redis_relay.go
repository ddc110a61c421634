package store

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultRelayChannel = "ledger:changes"

// RedisRelay shares change notifications between instances that use the same
// database. Local changes are published to a redis channel and changes from
// other instances are delivered to the local hub.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        *Hub
	log        *logrus.Entry
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, log *logrus.Entry) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceID: PushKey(),
		hub:        hub,
		log:        log.WithField("component", "redis_relay"),
	}
}

func (r *RedisRelay) encode(path string) string {
	return r.instanceID + "|" + path
}

// decode returns the path of a message sent by another instance.
func (r *RedisRelay) decode(payload string) (string, bool) {
	origin, path, ok := strings.Cut(payload, "|")
	if !ok || origin == r.instanceID || path == "" {
		return "", false
	}
	return path, true
}

// Start forwards local changes and delivers remote ones until ctx is done.
func (r *RedisRelay) Start(ctx context.Context) {
	r.hub.SetForwarder(func(path string) {
		if err := r.client.Publish(ctx, r.channel, r.encode(path)).Err(); err != nil {
			r.log.WithError(err).WithField("path", path).Warn("failed to publish change")
		}
	})

	sub := r.client.Subscribe(ctx, r.channel)
	go func() {
		defer sub.Close()
		r.log.WithField("channel", r.channel).Info("relaying store changes through redis")
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				r.hub.SetForwarder(nil)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if path, ok := r.decode(msg.Payload); ok {
					r.hub.Deliver(path)
				}
			}
		}
	}()
}
