package broadcast

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/progrium/tabtalk-go/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// originLen is the size of the xid prefixed to every payload so a port can
// recognize and drop its own echoes; Redis delivers to all subscribers.
const originLen = 12

// Redis is a hub backed by Redis pub/sub. Contexts in any process connected
// to the same Redis behave like tabs of one origin.
type Redis struct {
	client redis.UniversalClient
	log    *slog.Logger
}

// NewRedis returns a hub publishing through client. A nil logger discards.
func NewRedis(client redis.UniversalClient, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		log:    logging.OrDiscard(logger),
	}
}

// Open subscribes to the named Redis channel and waits for the subscription
// to be confirmed, so posts made after Open returns are not missed.
func (h *Redis) Open(name string) (Port, error) {
	ctx := context.Background()
	ps := h.client.Subscribe(ctx, name)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("broadcast: redis subscribe %s: %w", name, err)
	}
	p := &redisPort{
		hub:    h,
		name:   name,
		origin: xid.New(),
		ps:     ps,
		inbox:  NewQueue[[]byte](),
	}
	go p.loop()
	return p, nil
}

type redisPort struct {
	hub    *Redis
	name   string
	origin xid.ID
	ps     *redis.PubSub
	inbox  *Queue[[]byte]
	closed atomic.Bool
}

func (p *redisPort) Name() string {
	return p.name
}

func (p *redisPort) loop() {
	self := p.origin.Bytes()
	for msg := range p.ps.Channel() {
		payload := []byte(msg.Payload)
		if len(payload) < originLen {
			p.hub.log.Warn("broadcast: dropping redis message without origin", "channel", p.name)
			continue
		}
		if bytes.Equal(payload[:originLen], self) {
			continue
		}
		p.inbox.Push(payload[originLen:])
	}
	p.inbox.Close(ErrClosed)
}

func (p *redisPort) Post(data []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	msg := make([]byte, 0, originLen+len(data))
	msg = append(msg, p.origin.Bytes()...)
	msg = append(msg, data...)
	if err := p.hub.client.Publish(context.Background(), p.name, msg).Err(); err != nil {
		return fmt.Errorf("broadcast: redis publish %s: %w", p.name, err)
	}
	return nil
}

func (p *redisPort) Recv() ([]byte, error) {
	return p.inbox.Pop()
}

func (p *redisPort) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.inbox.Abort(ErrClosed)
	return p.ps.Close()
}
