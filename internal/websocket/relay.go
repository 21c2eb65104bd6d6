//go:generate go run go.uber.org/mock/mockgen -source=relay.go -destination=../mocks/mock_relay.go -package=mocks
package websocket

import (
	"context"

	"github.com/game-lobby/internal/domain"
)

// Relay forwards game-started events to every server instance, this one included.
// Each instance's relay subscriber hands received events to Hub.Deliver.
type Relay interface {
	Publish(ctx context.Context, evt domain.GameStarted) error
}
