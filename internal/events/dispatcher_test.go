package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_FanOutByType(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var got []string

	d.Subscribe(EventAccessChanged, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.AccountID)
		return errors.New("ignored")
	})
	d.Subscribe(EventAccessChanged, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.AccountID)
		return nil
	})
	d.Subscribe(EventPresenceChanged, func(context.Context, Event) error {
		got = append(got, "presence")
		return nil
	})

	err := d.Publish(context.Background(), New(EventAccessChanged, "acc-1", "admin", AccessChangedPayload{Active: false}))
	require.NoError(t, err)
	assert.Equal(t, []string{"first:acc-1", "second:acc-1"}, got)
}

func TestNew_StampsTime(t *testing.T) {
	e := New(EventPresenceChanged, "acc-1", "", PresenceChangedPayload{Online: true})
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, PresenceChangedPayload{Online: true}, e.Payload)
}
