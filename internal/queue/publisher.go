package queue

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    "github.com/pkg/errors"
    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// CatalogQueue is the durable queue catalog events are routed to.
const CatalogQueue = "catalog.events"

// Publisher receives catalog events.  Implementations must not block the
// request for long; callers log and otherwise ignore publish errors.
type Publisher interface {
    Publish(ctx context.Context, ev CatalogEvent) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, CatalogEvent) error { return nil }

// Fanout delivers an event to every publisher and returns the first error.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev CatalogEvent) error {
    var first error
    for _, p := range f {
        if err := p.Publish(ctx, ev); err != nil && first == nil {
            first = err
        }
    }
    return first
}

const (
    // amqpDialTimeout bounds how long a publish on the request path can
    // wait for an unreachable broker.
    amqpDialTimeout = 3 * time.Second
    // amqpRedialBackoff is how long publishes fail fast after a failed dial.
    amqpRedialBackoff = 30 * time.Second
)

// ErrBrokerBackoff is returned while the publisher waits out a failed dial.
var ErrBrokerBackoff = errors.New("amqp broker unreachable, backing off")

// AMQPPublisher publishes persistent JSON messages to CatalogQueue over a
// single lazily (re)opened connection.
type AMQPPublisher struct {
    url    string
    logger *zap.Logger
    dial   func(url string) (*amqp.Connection, error)
    now    func() time.Time

    mu       sync.Mutex
    conn     *amqp.Connection
    ch       *amqp.Channel
    nextDial time.Time
}

func NewAMQPPublisher(url string, logger *zap.Logger) *AMQPPublisher {
    return &AMQPPublisher{url: url, logger: logger, dial: dialAMQP, now: time.Now}
}

func dialAMQP(url string) (*amqp.Connection, error) {
    return amqp.DialConfig(url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(amqpDialTimeout),
    })
}

// channel returns an open channel, dialing and declaring the queue when
// the previous connection is gone.  Caller holds p.mu.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    if p.conn == nil || p.conn.IsClosed() {
        if p.now().Before(p.nextDial) {
            return nil, ErrBrokerBackoff
        }
        conn, err := p.dial(p.url)
        if err != nil {
            p.nextDial = p.now().Add(amqpRedialBackoff)
            return nil, errors.Wrap(err, "amqp dial")
        }
        p.conn = conn
    }
    ch, err := p.conn.Channel()
    if err != nil {
        return nil, errors.Wrap(err, "amqp channel")
    }
    // Durable so messages survive broker restarts; declaring is idempotent.
    if _, err := ch.QueueDeclare(CatalogQueue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        return nil, errors.Wrap(err, "amqp queue declare")
    }
    p.ch = ch
    return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev CatalogEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return errors.Wrap(err, "marshal event")
    }
    p.mu.Lock()
    defer p.mu.Unlock()

    ch, err := p.channel()
    if err != nil {
        p.logger.Warn("catalog event not published", zap.String("type", ev.Type), zap.Error(err))
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.ID,
        Type:         ev.Type,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", CatalogQueue, false, false, pub); err != nil {
        _ = ch.Close()
        p.ch = nil
        p.logger.Warn("catalog event not published", zap.String("type", ev.Type), zap.Error(err))
        return errors.Wrap(err, "amqp publish")
    }
    return nil
}

// Close shuts the channel and connection down.
func (p *AMQPPublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        err := p.conn.Close()
        p.conn = nil
        return err
    }
    return nil
}
