// internal/bus/bus_test.go
package bus

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPublishSubscribe(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	topic := Topic{Source: "my-modal", Name: "modal:show"}

	var got []Message
	unsub := b.Subscribe(topic, func(m Message) { got = append(got, m) })
	b.Subscribe(Topic{Source: "other", Name: "modal:show"}, func(Message) {
		t.Fatal("message leaked to another source")
	})

	msg := b.Publish(topic, map[string]any{"modal": "instance"})
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)
	_, err := uuid.Parse(msg.ID)
	assert.NoError(t, err)
	assert.Equal(t, "instance", got[0].Payload["modal"])
	assert.Equal(t, 1, b.SubscriberCount(topic))

	unsub()
	unsub()
	b.Publish(topic, nil)
	assert.Len(t, got, 1)
	assert.Zero(t, b.SubscriberCount(topic))
}

func TestAnySourceAndSubscribeAll(t *testing.T) {
	b := New(nil)

	var order []string
	b.Subscribe(Topic{Source: "d1", Name: "drawer:show"}, func(Message) { order = append(order, "exact") })
	b.Subscribe(Topic{Source: AnySource, Name: "drawer:show"}, func(Message) { order = append(order, "any") })
	unsubAll := b.SubscribeAll(func(m Message) { order = append(order, "all:"+m.Topic.String()) })

	b.Publish(Topic{Source: "d1", Name: "drawer:show"}, nil)
	assert.Equal(t, []string{"exact", "any", "all:d1/drawer:show"}, order)

	unsubAll()
	order = nil
	b.Publish(Topic{Source: "d2", Name: "drawer:show"}, nil)
	assert.Equal(t, []string{"any"}, order)
}

func TestUnsubscribeDuringDelivery(t *testing.T) {
	b := New(nil)
	topic := Topic{Source: "x", Name: "y"}

	calls := 0
	var second func()
	b.Subscribe(topic, func(Message) {
		calls++
		second()
	})
	second = b.Subscribe(topic, func(Message) { calls += 10 })

	b.Publish(topic, nil)
	assert.Equal(t, 1, calls, "a subscription removed mid-publish is not called")
}

func TestShutdown(t *testing.T) {
	b := New(nil)
	topic := Topic{Source: "x", Name: "y"}
	called := false
	b.Subscribe(topic, func(Message) { called = true })

	b.Shutdown()
	b.Shutdown()
	b.Publish(topic, nil)
	assert.False(t, called)

	unsub := b.Subscribe(topic, func(Message) { called = true })
	unsub()
	b.Publish(topic, nil)
	assert.False(t, called)
}
