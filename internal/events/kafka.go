package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig configura o barramento Kafka.
type KafkaConfig struct {
	Brokers []string
	GroupID string
}

// KafkaBus publica cada evento no tópico de mesmo nome e consome com
// consumer group, de modo que réplicas dividem as mensagens.
type KafkaBus struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	logger zerolog.Logger

	mu      sync.Mutex
	readers map[*kafkaSubscription]struct{}
	closed  bool
}

func NewKafkaBus(cfg KafkaConfig, logger zerolog.Logger) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: nenhum broker kafka configurado")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaBus{
		cfg:     cfg,
		writer:  writer,
		logger:  logger.With().Str("component", "events.kafka").Logger(),
		readers: make(map[*kafkaSubscription]struct{}),
	}, nil
}

func (b *KafkaBus) Publish(ctx context.Context, name string, payload []byte) error {
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: name,
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("events: publicar %s: %w", name, err)
	}
	return nil
}

func (b *KafkaBus) Subscribe(ctx context.Context, name string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        b.cfg.Brokers,
		GroupID:        b.cfg.GroupID,
		Topic:          name,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &kafkaSubscription{bus: b, reader: reader, cancel: cancel, done: make(chan struct{})}
	b.readers[sub] = struct{}{}

	go sub.loop(runCtx, name, handler)
	return sub, nil
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*kafkaSubscription, 0, len(b.readers))
	for s := range b.readers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return b.writer.Close()
}

type kafkaSubscription struct {
	bus    *KafkaBus
	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *kafkaSubscription) loop(ctx context.Context, name string, handler Handler) {
	defer close(s.done)
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.bus.logger.Error().Err(err).Str("event", name).Msg("kafka_read_failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		// Commit automático pelo consumer group; falhas do handler não bloqueiam o tópico.
		dispatch(ctx, s.bus.logger, name, handler, msg.Value)
	}
}

func (s *kafkaSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = s.reader.Close()

		s.bus.mu.Lock()
		delete(s.bus.readers, s)
		s.bus.mu.Unlock()
	})
	return err
}
