package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/puce-ride/appride/internal/metrics"
)

// ExchangeName is the topic exchange reservation events are published on.
const ExchangeName = "appride.reservations"

// AuditQueueName is the durable queue bound to every reservation event.
const AuditQueueName = "reservations.audit"

const (
	defaultBuffer      = 256
	defaultDialTimeout = 2 * time.Second
)

var (
	// ErrBufferFull is returned by Publish when the delivery buffer is
	// saturated; the event is dropped.
	ErrBufferFull = errors.New("event buffer full")
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)

// Publisher sends reservation events to RabbitMQ.  Publish only enqueues;
// a single background goroutine owns the connection, dials lazily with a
// bounded timeout and re-dials after a failure.  Delivery failures are
// logged and counted there.
type Publisher struct {
	url         string
	logger      *log.Logger
	dialTimeout time.Duration

	events    chan ReservationEvent
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// owned by run
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the broker at url and starts its
// delivery goroutine.
func NewPublisher(url string, logger *log.Logger) *Publisher {
	return newPublisher(url, logger, defaultBuffer, defaultDialTimeout)
}

func newPublisher(url string, logger *log.Logger, buffer int, dialTimeout time.Duration) *Publisher {
	p := &Publisher{
		url:         url,
		logger:      logger,
		dialTimeout: dialTimeout,
		events:      make(chan ReservationEvent, buffer),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish hands ev to the delivery goroutine and never blocks.  The
// context is not consulted: the event describes an already committed
// change and must outlive the request that produced it.
func (p *Publisher) Publish(_ context.Context, ev ReservationEvent) error {
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events, makes one pass over the buffered ones and
// releases the connection.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	<-p.stopped
	return nil
}

func (p *Publisher) run() {
	defer close(p.stopped)
	defer p.reset()
	for {
		select {
		case ev := <-p.events:
			p.deliver(ev)
		case <-p.done:
			p.drain()
			return
		}
	}
}

// drain delivers what is still buffered, dropping the rest after the first
// failure so shutdown is not held up by a dead broker.
func (p *Publisher) drain() {
	for {
		select {
		case ev := <-p.events:
			if !p.deliver(ev) {
				dropped := len(p.events)
				metrics.EventPublishFailures.Add(float64(dropped))
				if dropped > 0 {
					p.logger.Warnf("rabbitmq: dropped %d buffered events on close", dropped)
				}
				return
			}
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ev ReservationEvent) bool {
	if err := p.send(ev); err != nil {
		metrics.EventPublishFailures.Inc()
		p.logger.Warnf("rabbitmq: publish %s for reservation %d: %v", ev.Kind, ev.ReservationID, err)
		return false
	}
	return true
}

func (p *Publisher) send(ev ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.ensureChannel(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
	defer cancel()
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, ExchangeName, ev.Kind, false, false, pub); err != nil {
		p.reset()
		return err
	}
	return nil
}

func (p *Publisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.reset()
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial:      amqp.DefaultDial(p.dialTimeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel open: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// declareTopology declares the exchange and the audit queue bound to all
// reservation routing keys.  Declarations are idempotent.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(AuditQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(AuditQueueName, "reservation.*", ExchangeName, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	return nil
}
