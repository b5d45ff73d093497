// Package jobevents publishes order job state transitions to Kafka.
package jobevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/observability"
)

type Event struct {
	RunID     string    `json:"run_id"`
	Date      string    `json:"date"`
	OrderName string    `json:"order_name"`
	OrderID   string    `json:"order_id,omitempty"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	TS        time.Time `json:"ts"`
}

// Key groups one job's events on a single partition.
func (e Event) Key() string { return e.RunID + "/" + e.Date }

// Sink receives events. Publish never blocks.
type Sink interface {
	Publish(ev Event)
}

type Nop struct{}

func (Nop) Publish(Event) {}

type Publisher struct {
	topic   string
	log     *slog.Logger
	prod    sarama.AsyncProducer
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
	events chan Event
}

func NewPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("jobevents: create async producer: %w", err)
	}
	return newPublisher(prod, topic, queueSize, log), nil
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		log:     log,
		prod:    prod,
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Error("jobevents: marshal", "error", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Key()),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.log.Warn("jobevents: producer error", "error", err)
			}
		}
	}()

	return p
}

func (p *Publisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncEventsDropped()
		return
	}
	select {
	case p.events <- ev:
	default:
		// queue full, drop rather than stall the job
		observability.IncEventsDropped()
	}
}

// Close flushes queued events and closes the producer. Later calls are no-ops.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("jobevents: close producer: %w", err)
	}
	return nil
}
