package stream

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"nexflow/domain"
)

// ReconnectDelay is the pause before a dropped subscription is reopened.
var ReconnectDelay = time.Second

// SubscribeRedis listens for ticket events published on channel and passes
// every decodable event to handle. It reconnects when the subscription drops
// and returns once ctx is done.
func SubscribeRedis(
	ctx context.Context,
	logger *log.Logger,
	rc *redis.Client,
	channel string,
	handle func(domain.TicketEvent),
) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.TicketEvent
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
					logger.WithError(err).WithField("channel", channel).Warn("unable to parse ticket event")
					continue
				}
				logger.WithFields(log.Fields{"type": ev.Type, "project": ev.Project}).Debug("ticket event")
				handle(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.WithField("channel", channel).Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

// PublishEvent publishes ev on channel.
func PublishEvent(ctx context.Context, rc *redis.Client, channel string, ev domain.TicketEvent) error {
	data, err := sonic.MarshalString(ev)
	if err != nil {
		return err
	}
	return rc.Publish(ctx, channel, data).Err()
}
