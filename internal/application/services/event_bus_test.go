package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docuflow/backend/internal/domain/events"
)

// Unsubscribing removes exactly the one handler the closure was returned for;
// sibling subscriptions on the same event keep firing.
func TestEventBus_UnsubscribeRemovesHandler(t *testing.T) {
	bus := NewEventBus()

	first, second := 0, 0
	unsubscribe := bus.Subscribe(events.InstanceApproved, func(_ context.Context, _ interface{}) error {
		first++
		return nil
	})
	bus.Subscribe(events.InstanceApproved, func(_ context.Context, _ interface{}) error {
		second++
		return nil
	})

	unsubscribe()

	err := bus.Publish(context.Background(), events.InstanceApproved, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, first, "unsubscribed handler must not fire")
	assert.Equal(t, 1, second)

	// Calling the closure again is a no-op
	unsubscribe()

	err = bus.Publish(context.Background(), events.InstanceApproved, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, first)
	assert.Equal(t, 2, second)
}

func TestEventBus_PublishOnlyMatchingType(t *testing.T) {
	bus := NewEventBus()

	fired := 0
	bus.Subscribe(events.InstanceRejected, func(_ context.Context, _ interface{}) error {
		fired++
		return nil
	})

	err := bus.Publish(context.Background(), events.InstanceApproved, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, fired)

	err = bus.Publish(context.Background(), events.InstanceRejected, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, fired)
}
