package dualthread

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/go-redis/redis/v8"
)

const (
	// redisPoll bounds each BLPOP so a closed port notices quickly.
	redisPoll = time.Second
	// redisRetry is the pause after a failed BLPOP before trying again.
	redisRetry = 250 * time.Millisecond
)

// Redis returns a redis client ready to use. The first call to Redis() builds the client from REDIS_URL,
// or from REDIS_ADDR, REDIS_PASSWORD and REDIS_DATABASE, and pings the server with the provided context.
func (h *Host) Redis(ctx context.Context) (*redis.Client, error) {
	h.mu.Lock()
	rdb := h.redisClient
	h.mu.Unlock()
	if rdb != nil {
		return rdb, nil
	}

	url, err := h.Option(ctx, "REDIS_URL")
	if err != nil {
		return nil, err
	}
	if url != "" {
		opt, err := redis.ParseURL(url)
		if err != nil {
			return nil, err
		}
		rdb = redis.NewClient(opt)
	} else {
		pass, err := h.Secret(ctx, "REDIS_PASSWORD")
		if err != nil {
			return nil, err
		}
		database := 0
		if db := h.OptionDefault(ctx, "REDIS_DATABASE", ""); db != "" {
			database, err = strconv.Atoi(db)
			if err != nil {
				return nil, fmt.Errorf("REDIS_DATABASE: %w", err)
			}
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     h.ServiceAddr(ctx, "redis", 6379),
			Password: pass,
			DB:       database,
		})
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.redisClient != nil {
		_ = rdb.Close()
		return h.redisClient, nil
	}
	h.redisClient = rdb
	return rdb, nil
}

// RedisTransport carries messages on Redis lists: RPUSH to post and BLPOP to receive. Lists keep messages
// posted before the receiver starts.
type RedisTransport struct {
	rdb *redis.Client
	log log.Interface
}

// NewRedisTransport creates a transport over rdb.
func NewRedisTransport(rdb *redis.Client, logger log.Interface) *RedisTransport {
	return &RedisTransport{rdb: rdb, log: logger}
}

// Open starts receiving from the recv list.
func (t *RedisTransport) Open(ctx context.Context, send, recv string) (Port, error) {
	ctx, cancel := context.WithCancel(ctx)
	p := &redisPort{
		rdb:    t.rdb,
		send:   send,
		recv:   recv,
		msgs:   make(chan MessageEvent),
		cancel: cancel,
		done:   make(chan struct{}),
		log:    t.log.WithField("subject", recv),
	}
	go p.pump(ctx)
	return p, nil
}

type redisPort struct {
	rdb    *redis.Client
	send   string
	recv   string
	msgs   chan MessageEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	log    log.Interface
}

func (p *redisPort) pump(ctx context.Context) {
	defer close(p.done)
	defer close(p.msgs)
	for {
		res, err := p.rdb.BLPop(ctx, redisPoll, p.recv).Result()
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			p.log.WithError(err).Warn("redis receive failed")
			select {
			case <-time.After(redisRetry):
				continue
			case <-ctx.Done():
				return
			}
		}
		// BLPOP replies with the key followed by the value.
		ev := MessageEvent{Subject: res[0], Data: []byte(res[1])}
		select {
		case p.msgs <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (p *redisPort) PostMessage(ctx context.Context, data []byte) error {
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}
	return p.rdb.RPush(ctx, p.send, data).Err()
}

func (p *redisPort) Messages() <-chan MessageEvent {
	return p.msgs
}

func (p *redisPort) Close() error {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
	return nil
}
