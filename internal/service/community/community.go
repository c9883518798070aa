// internal/service/community/community.go
package community

import (
	"context"
	"encoding/json"
	"fmt"

	domain "topluluk-service/internal/domain/community"
	xerrors "topluluk-service/internal/pkg/errors"
	"topluluk-service/internal/pkg/event"

	"go.uber.org/zap"
)

// Service answers community lookups over the bus. The auth flows use
// it to confirm a leader's community still exists.
type Service struct {
	communities domain.Store
	logger      *zap.Logger
}

func NewService(communities domain.Store, logger *zap.Logger) *Service {
	return &Service{communities: communities, logger: logger}
}

// Get loads a community by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Community, error) {
	return s.communities.FindByID(ctx, id)
}

// RegisterResponders wires the community RPC endpoints onto the bus.
func (s *Service) RegisterResponders(subscriber *event.Subscriber) ([]event.Subscription, error) {
	sub, err := subscriber.RespondTo(event.TopicCommunityGet, func(ctx context.Context, payload json.RawMessage, _ event.Metadata) (interface{}, error) {
		var req event.CommunityGetRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("malformed community request: %w", err)
		}
		if req.CommunityID == "" {
			return event.CommunityGetResponse{Success: false, Error: "communityId is required", Code: "INVALID_REQUEST"}, nil
		}

		s.logger.Info("resolving community",
			zap.String("communityId", req.CommunityID),
			zap.String("requestedBy", req.UserID))

		c, err := s.communities.FindByID(ctx, req.CommunityID)
		if err != nil {
			if xerrors.Is(err, xerrors.ErrNotFound) {
				return event.CommunityGetResponse{Success: false, Error: "community not found", Code: "COMMUNITY_NOT_FOUND"}, nil
			}
			return nil, err
		}

		return event.CommunityGetResponse{
			Success: true,
			Community: &event.CommunitySummary{
				ID:       c.ID,
				Name:     c.Name,
				LeaderID: c.LeaderID,
				IsActive: c.IsActive,
			},
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register community responder: %w", err)
	}

	return []event.Subscription{sub}, nil
}
