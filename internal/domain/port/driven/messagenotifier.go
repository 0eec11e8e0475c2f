package driven

import (
	"context"

	"github.com/ericfisherdev/roomvault/internal/domain/model"
)

// MessageNotifier announces durably stored messages to downstream consumers
// such as push notification services. Implementations must not require the
// message text.
type MessageNotifier interface {
	MessageStored(ctx context.Context, event model.MessageStored) error
}
