// Package notification はフォロー等のイベントに伴う通知の作成と配信を提供する。
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/hitoshi/socialgraph/internal/repository"
)

// PublishFailureRecorder は配信失敗のメトリクス記録インターフェース。
type PublishFailureRecorder interface {
	RecordNotificationPublishFailure(publisher string)
}

// Service は通知のサービス層。
// 通知レコードの永続化が成功した時点で通知は作成済みとみなし、
// Publisherへの配信はベストエフォートで行う。
type Service struct {
	repo      repository.NotificationRepository
	publisher Publisher
	metrics   PublishFailureRecorder

	newID func() string
	now   func() time.Time
}

// NewService はServiceを生成する。publisherがnilの場合は配信を行わない。
func NewService(repo repository.NotificationRepository, publisher Publisher, metrics PublishFailureRecorder) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

// NotifyFollow はfromUserIDがtoUserIDをフォローしたことを示す通知を作成する。
func (s *Service) NotifyFollow(ctx context.Context, fromUserID, toUserID string) (*model.Notification, error) {
	n := &model.Notification{
		ID:         s.newID(),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Type:       model.NotificationTypeFollow,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if err := s.publisher.Publish(ctx, n); err != nil {
		if s.metrics != nil {
			s.metrics.RecordNotificationPublishFailure(s.publisher.Name())
		}
		slog.Warn("notification publish failed",
			slog.String("notification_id", n.ID),
			slog.String("publisher", s.publisher.Name()),
			slog.String("error", err.Error()),
		)
	}

	return n, nil
}

// ListForUser は指定ユーザー宛ての通知を新しい順に返す。
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	notifications, err := s.repo.ListByRecipient(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// DefaultListLimit は通知一覧の既定の最大件数。
const DefaultListLimit = 50
