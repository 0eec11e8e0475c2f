package driven

import (
	"context"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// EventRelay carries room events between service instances so that
// subscribers connected to different instances see the same room.
type EventRelay interface {
	// Publish sends a locally produced event to the other instances.
	Publish(ctx context.Context, event model.Event) error

	// Subscribe registers handler for events published by any instance. The
	// returned function cancels the subscription.
	Subscribe(handler func(model.Event)) (unsubscribe func() error, err error)
}
