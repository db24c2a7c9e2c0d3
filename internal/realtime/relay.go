package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/roadwatch/roadwatch/internal/monitoring"
	"github.com/roadwatch/roadwatch/pkg/logger"
)

// DefaultRelayChannel is the pub/sub channel shared by every instance.
const DefaultRelayChannel = "roadwatch:realtime"

const (
	relayPublishTimeout = 2 * time.Second
	relayOutboxSize     = 256
	relayMinBackoff     = 500 * time.Millisecond
	relayMaxBackoff     = 30 * time.Second
)

var errRelaySubscriptionClosed = errors.New("realtime: relay subscription closed")

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// relaySubscription is the part of *redis.PubSub the relay consumes.
type relaySubscription interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisRelay fans room sends out to every instance through Redis pub/sub. Sends reach the
// local gateway immediately and are queued for peers; a worker started by Run publishes
// the queue. Messages carrying this relay's origin are ignored on receipt so local members
// see each event once.
type RedisRelay struct {
	client    redis.UniversalClient
	channel   string
	local     Sender
	origin    string
	outbox    chan []byte
	subscribe func(ctx context.Context, channel string) relaySubscription
	backoff   [2]time.Duration
	log       *zap.Logger
}

// NewRedisRelay wraps local with cross-instance delivery.
func NewRedisRelay(client redis.UniversalClient, channel string, local Sender) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		local:   local,
		origin:  uuid.NewString(),
		outbox:  make(chan []byte, relayOutboxSize),
		subscribe: func(ctx context.Context, channel string) relaySubscription {
			return client.Subscribe(ctx, channel)
		},
		backoff: [2]time.Duration{relayMinBackoff, relayMaxBackoff},
		log:     logger.WithModule("realtime.relay"),
	}
}

// Origin identifies this instance on the channel.
func (r *RedisRelay) Origin() string {
	return r.origin
}

// Send delivers locally and queues the message for peers without waiting on Redis. A full
// queue drops the peer copy.
func (r *RedisRelay) Send(room, event string, payload any) {
	r.local.Send(room, event, payload)

	raw, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn("encode relay payload", zap.String("event", event), zap.Error(err))
		return
	}
	body, err := json.Marshal(relayEnvelope{Origin: r.origin, Room: room, Event: event, Payload: raw})
	if err != nil {
		r.log.Warn("encode relay envelope", zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case r.outbox <- body:
	default:
		r.log.Warn("relay outbox full", zap.String("room", room), zap.String("event", event))
		monitoring.RecordRealtimeDrop(room, "relay outbox full")
	}
}

// Run publishes queued sends and delivers peer messages to the local gateway until ctx is
// cancelled. A lost subscription is re-established with exponential backoff.
func (r *RedisRelay) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.publishLoop(ctx)
	}()
	defer wg.Wait()

	wait := r.backoff[0]
	for {
		subscribed, err := r.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			wait = r.backoff[0]
		}
		r.log.Warn("relay subscription lost", zap.Duration("retry_in", wait), zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		wait = min(wait*2, r.backoff[1])
	}
}

// listen consumes one subscription. subscribed reports whether the subscription was
// confirmed before it ended.
func (r *RedisRelay) listen(ctx context.Context) (subscribed bool, err error) {
	sub := r.subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}
	r.log.Debug("relay subscribed", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-messages:
			if !ok {
				return true, errRelaySubscriptionClosed
			}
			r.deliver([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case body := <-r.outbox:
			publishCtx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
			if err := r.client.Publish(publishCtx, r.channel, body).Err(); err != nil {
				r.log.Warn("publish relay message", zap.Error(err))
			}
			cancel()
		}
	}
}

func (r *RedisRelay) deliver(body []byte) {
	var envelope relayEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		r.log.Debug("discarding malformed relay message", zap.Error(err))
		return
	}
	if envelope.Origin == r.origin {
		return
	}

	var payload any
	if len(envelope.Payload) > 0 {
		payload = envelope.Payload
	}
	r.local.Send(envelope.Room, envelope.Event, payload)
}
