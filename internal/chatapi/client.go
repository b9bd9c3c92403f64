// Package chatapi talks to the third-party chat/helpdesk API that owns the
// patient queue. The rest of the system only depends on the Client interface.
package chatapi

import (
	"context"

	"go.uber.org/zap"
)

// Client is the surface the coordinator needs from the chat API.
//
// ListWaitingEntities returns an error on transport failure. SendActionCard
// follows the API's own contract: application-level rejection comes back as
// (false, nil), transport failure as an error.
type Client interface {
	ListWaitingEntities(ctx context.Context) ([]WaitingEntity, error)
	SendActionCard(ctx context.Context, entityID, cardID string) (bool, error)
}

// LogClient is a development/test client that serves an empty queue and
// logs sends instead of performing them.
type LogClient struct {
	logger   *zap.Logger
	Entities []WaitingEntity
}

// NewLogClient creates a client that only logs.
func NewLogClient(logger *zap.Logger) *LogClient {
	return &LogClient{logger: logger}
}

func (c *LogClient) ListWaitingEntities(ctx context.Context) ([]WaitingEntity, error) {
	return c.Entities, nil
}

func (c *LogClient) SendActionCard(ctx context.Context, entityID, cardID string) (bool, error) {
	c.logger.Info("action card send (log only)",
		zap.String("entity_id", entityID),
		zap.String("card_id", cardID),
	)
	return true, nil
}
