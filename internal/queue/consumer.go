package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// ObjectRemover deletes a stored object given its public URL.
type ObjectRemover interface {
    Delete(ctx context.Context, url string) error
}

// Consumer processes the events queue: it deletes the product images of
// removed accounts and logs order outcomes.
type Consumer struct {
    url     string
    objects ObjectRemover
    log     *zap.Logger
}

// NewConsumer returns a Consumer for the broker at url.
func NewConsumer(url string, objects ObjectRemover, log *zap.Logger) *Consumer {
    if log == nil {
        log = zap.NewNop()
    }
    return &Consumer{url: url, objects: objects, log: log}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff when the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("events-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warn("events-consumer: consume loop ended; reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warn("events-consumer: set QoS failed", zap.Error(err))
    }
    if err := declare(ch); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(EventsQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.handleMessage(ctx, d.Type, d.Body); err != nil {
                c.log.Error("events-consumer: handle message failed", zap.String("type", d.Type), zap.Error(err))
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) handleMessage(ctx context.Context, typ string, body []byte) error {
    switch typ {
    case TypeUserDeleted:
        var ev UserDeletedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        if len(ev.Images) == 0 || c.objects == nil {
            return nil
        }
        var failed int
        var firstErr error
        for _, url := range ev.Images {
            if err := c.objects.Delete(ctx, url); err != nil {
                c.log.Warn("events-consumer: image delete failed", zap.Uint64("user_id", ev.UserID), zap.String("url", url), zap.Error(err))
                failed++
                if firstErr == nil {
                    firstErr = err
                }
            }
        }
        if firstErr != nil {
            return fmt.Errorf("delete %d of %d images of user %d: %w", failed, len(ev.Images), ev.UserID, firstErr)
        }
        c.log.Info("user images removed", zap.Uint64("user_id", ev.UserID), zap.Int("count", len(ev.Images)))
        return nil
    case TypeOrderSucceeded, TypeOrderCanceled:
        var ev OrderEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        c.log.Info("order finished",
            zap.String("event", typ),
            zap.Uint64("order_id", ev.OrderID),
            zap.Uint64("user_id", ev.UserID),
            zap.String("payment_id", ev.PaymentID),
            zap.String("total", ev.TotalPrice),
        )
        return nil
    default:
        c.log.Debug("events-consumer: unknown event ignored", zap.String("type", typ))
        return nil
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-t.C:
        return true
    case <-ctx.Done():
        return false
    }
}
