package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var got []string

	d.Subscribe(EventSquadOpened, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.SquadID)
		return errors.New("ignored")
	})
	d.Subscribe(EventSquadOpened, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.SquadID)
		return nil
	})
	d.Subscribe(EventSquadFull, func(context.Context, Event) error {
		got = append(got, "full")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventSquadOpened, SquadID: "s1"}))
	require.Equal(t, []string{"first:s1", "second:s1"}, got)
}
