package queue

import (
    "context"
    "encoding/json"
    "errors"
    "net"
    "sync"
    "testing"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
    "go.uber.org/zap/zaptest/observer"
)

type fakeRemover struct {
    urls []string
    err  error
}

func (f *fakeRemover) Delete(_ context.Context, url string) error {
    f.urls = append(f.urls, url)
    return f.err
}

func TestEncode(t *testing.T) {
    now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
    ev := NewOrderEvent("succeeded", 7, 3, "pay-1", "200.00", now)

    msg, err := encode(ev, now)
    require.NoError(t, err)
    assert.Equal(t, TypeOrderSucceeded, msg.Type)
    assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
    assert.Equal(t, "application/json", msg.ContentType)

    var back OrderEvent
    require.NoError(t, json.Unmarshal(msg.Body, &back))
    assert.Equal(t, uint64(7), back.OrderID)
    assert.Equal(t, "2026-05-01T12:00:00Z", back.OccurredAt)
}

func TestHandleMessage_UserDeletedRemovesImages(t *testing.T) {
    rm := &fakeRemover{}
    c := NewConsumer("", rm, zap.NewNop())
    images := []string{"https://cdn/product_images/a.png", "https://cdn/product_images/b.png"}
    body, _ := json.Marshal(UserDeletedEvent{UserID: 3, Images: images})

    require.NoError(t, c.handleMessage(context.Background(), TypeUserDeleted, body))
    assert.Equal(t, images, rm.urls)
}

func TestHandleMessage_UserWithoutImages(t *testing.T) {
    rm := &fakeRemover{}
    c := NewConsumer("", rm, nil)
    body, _ := json.Marshal(UserDeletedEvent{UserID: 3})

    require.NoError(t, c.handleMessage(context.Background(), TypeUserDeleted, body))
    assert.Empty(t, rm.urls)
}

func TestHandleMessage_RemoverFailureIsReported(t *testing.T) {
    rm := &fakeRemover{err: errors.New("s3 down")}
    c := NewConsumer("", rm, nil)
    body, _ := json.Marshal(UserDeletedEvent{UserID: 3, Images: []string{"https://cdn/a.png", "https://cdn/b.png"}})

    err := c.handleMessage(context.Background(), TypeUserDeleted, body)
    require.Error(t, err)
    assert.Contains(t, err.Error(), "delete 2 of 2 images")
    // every image is attempted even after the first failure
    assert.Len(t, rm.urls, 2)
}

func TestHandleMessage_OrderEventsAreLogged(t *testing.T) {
    core, logs := observer.New(zap.InfoLevel)
    c := NewConsumer("", nil, zap.New(core))
    body, _ := json.Marshal(NewOrderEvent("canceled", 9, 1, "pay-9", "10.00", time.Now()))

    require.NoError(t, c.handleMessage(context.Background(), TypeOrderCanceled, body))
    require.Equal(t, 1, logs.Len())
    assert.Equal(t, "order finished", logs.All()[0].Message)
}

func TestHandleMessage_Malformed(t *testing.T) {
    c := NewConsumer("", nil, nil)
    assert.Error(t, c.handleMessage(context.Background(), TypeOrderSucceeded, []byte("{")))
    assert.NoError(t, c.handleMessage(context.Background(), "something.else", []byte("{")))
}

// silentBroker accepts TCP connections and never speaks AMQP.
func silentBroker(t *testing.T) string {
    t.Helper()
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    require.NoError(t, err)
    var (
        mu    sync.Mutex
        conns []net.Conn
    )
    go func() {
        for {
            c, err := ln.Accept()
            if err != nil {
                return
            }
            mu.Lock()
            conns = append(conns, c)
            mu.Unlock()
        }
    }()
    t.Cleanup(func() {
        _ = ln.Close()
        mu.Lock()
        defer mu.Unlock()
        for _, c := range conns {
            _ = c.Close()
        }
    })
    return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublish_DialTimeoutBoundsStalledBroker(t *testing.T) {
    p := NewPublisher(silentBroker(t), nil)
    p.dialTimeout = 100 * time.Millisecond

    start := time.Now()
    err := p.Publish(context.Background(), UserDeletedEvent{UserID: 1})
    require.Error(t, err)
    assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPublish_ContextDeadlineBoundsDial(t *testing.T) {
    p := NewPublisher(silentBroker(t), nil)

    ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
    defer cancel()
    start := time.Now()
    require.Error(t, p.Publish(ctx, UserDeletedEvent{UserID: 1}))
    assert.Less(t, time.Since(start), 2*time.Second)
}
