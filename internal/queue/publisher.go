package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// defaultDialTimeout bounds connecting to the broker, AMQP handshake
// included.
const defaultDialTimeout = 3 * time.Second

// Publisher sends domain events to the events queue. A connection is
// dialed per publish.
type Publisher struct {
    url         string
    dialTimeout time.Duration
    log         *zap.Logger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
    if log == nil {
        log = zap.NewNop()
    }
    return &Publisher{url: url, dialTimeout: defaultDialTimeout, log: log}
}

// dial connects within the dial timeout or the remaining time on ctx,
// whichever is shorter.
func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, error) {
    timeout := p.dialTimeout
    if dl, ok := ctx.Deadline(); ok {
        left := time.Until(dl)
        if left <= 0 {
            return nil, ctx.Err()
        }
        if left < timeout {
            timeout = left
        }
    }
    return amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(timeout),
    })
}

// Publish delivers ev as a persistent message. Errors are logged and
// returned so the caller can choose to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
    msg, err := encode(ev, time.Now())
    if err != nil {
        return err
    }

    conn, err := p.dial(ctx)
    if err != nil {
        p.log.Warn("rabbitmq: dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warn("rabbitmq: channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    if err := declare(ch); err != nil {
        p.log.Warn("rabbitmq: queue declare failed", zap.Error(err))
        return err
    }

    if err := ch.PublishWithContext(ctx,
        "",          // default exchange
        EventsQueue, // routing key = queue name
        false,       // mandatory
        false,       // immediate
        msg,
    ); err != nil {
        p.log.Warn("rabbitmq: publish failed", zap.String("event", ev.EventType()), zap.Error(err))
        return err
    }
    return nil
}

// encode turns ev into an AMQP message stamped at now.
func encode(ev Event, now time.Time) (amqp.Publishing, error) {
    body, err := json.Marshal(ev)
    if err != nil {
        return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", ev.EventType(), err)
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Type:         ev.EventType(),
        Timestamp:    now.UTC(),
        Body:         body,
    }, nil
}

// declare ensures the events queue exists (idempotent). Durable so messages
// survive broker restarts.
func declare(ch *amqp.Channel) error {
    _, err := ch.QueueDeclare(
        EventsQueue, // name
        true,        // durable
        false,       // autoDelete
        false,       // exclusive
        false,       // noWait
        nil,         // args
    )
    return err
}
