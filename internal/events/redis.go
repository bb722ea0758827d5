package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultConcurrency = 16

// RedisBus usa pub/sub do Redis; cada nome de evento é um canal.
type RedisBus struct {
	client      *redis.Client
	logger      zerolog.Logger
	concurrency int

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

func NewRedisBus(client *redis.Client, logger zerolog.Logger) *RedisBus {
	return &RedisBus{
		client:      client,
		logger:      logger.With().Str("component", "events.redis").Logger(),
		concurrency: defaultConcurrency,
		subs:        make(map[*redisSubscription]struct{}),
	}
}

func (b *RedisBus) Publish(ctx context.Context, name string, payload []byte) error {
	if err := b.client.Publish(ctx, name, payload).Err(); err != nil {
		return fmt.Errorf("events: publicar %s: %w", name, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, name string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, name)
	// Receive confirma a inscrição antes de devolver.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("events: assinar %s: %w", name, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &redisSubscription{bus: b, ps: ps, cancel: cancel, done: make(chan struct{})}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.loop(runCtx, name, handler, b.concurrency)
	return sub, nil
}

// Close encerra todas as inscrições ativas.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*redisSubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

type redisSubscription struct {
	bus    *RedisBus
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) loop(ctx context.Context, name string, handler Handler, concurrency int) {
	defer close(s.done)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for msg := range s.ps.Channel() {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func(payload []byte) {
			defer wg.Done()
			defer func() { <-sem }()
			dispatch(ctx, s.bus.logger, name, handler, payload)
		}([]byte(msg.Payload))
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ps.Close()
		<-s.done

		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	})
	return err
}

// dispatch executa o handler e apenas registra falhas e panics.
func dispatch(ctx context.Context, logger zerolog.Logger, name string, handler Handler, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Str("event", name).Interface("panic", rec).Msg("handler_panic")
		}
	}()
	if err := handler(ctx, payload); err != nil {
		logger.Warn().Err(err).Str("event", name).Msg("handler_failed")
	}
}
