package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/squad-service/internal/events"
)

func TestNotificationServiceForwardsToSinks(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	var first, second []events.EventType
	n := NewNotificationService(dispatcher, nil,
		func(_ context.Context, e events.Event) error {
			first = append(first, e.Type)
			return errors.New("sink down")
		},
		func(_ context.Context, e events.Event) error {
			second = append(second, e.Type)
			return nil
		},
	)
	n.RegisterHandlers()

	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventSquadOpened, SquadID: "s1"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventMemberAssigned, MemberID: "m1"}))

	want := []events.EventType{events.EventSquadOpened, events.EventMemberAssigned}
	require.Equal(t, want, first)
	require.Equal(t, want, second)

	err := n.handle(ctx, events.Event{Type: events.EventSquadClosed})
	require.ErrorContains(t, err, "sink down")
}
