package persistence

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// PubSub fans committed operations out to subscribers (e.g. a read-replica
// or a websocket gateway outside the core). It is called by the state
// machine after a commit, never from inside an engine, so a slow or
// unreachable Redis instance can never block matching.
type PubSub struct {
	client *redis.Client
	prefix string
}

func NewPubSub(addr, password string, db int, channelPrefix string) *PubSub {
	return &PubSub{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: channelPrefix,
	}
}

// Publish fans a committed event out on the per-asset channel. Errors are
// returned, not swallowed — callers decide whether a fan-out failure is
// worth logging or ignoring, since it is by construction decoupled from
// correctness.
func (p *PubSub) Publish(ctx context.Context, asset uint32, payload []byte) error {
	channel := p.channel(asset)
	return p.client.Publish(ctx, channel, payload).Err()
}

func (p *PubSub) channel(asset uint32) string {
	return p.prefix + ":" + itoa(asset)
}

func (p *PubSub) Close() error {
	return p.client.Close()
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
