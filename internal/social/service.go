// Package social はフォロー関係の変更とそれに伴う通知を提供する。
package social

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/hitoshi/socialgraph/internal/repository"
)

// フォロー切り替え後の状態
const (
	StateFollowed   = "followed"
	StateUnfollowed = "unfollowed"
)

// UserFinder はユーザー取得インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// FollowNotifier はフォロー通知の作成インターフェース。
type FollowNotifier interface {
	NotifyFollow(ctx context.Context, fromUserID, toUserID string) (*model.Notification, error)
}

// ToggleRecorder はフォロー操作のメトリクス記録インターフェース。
type ToggleRecorder interface {
	RecordFollowToggle(state string)
	RecordNotificationFailure()
}

// ToggleResult はフォロー操作の結果。
// NotificationFailedはエッジは作成されたが通知の作成に失敗した場合にtrueとなる。
type ToggleResult struct {
	State               string
	NotificationCreated bool
	NotificationFailed  bool
}

// Service はフォロー関係のサービス層。
// エッジの両側の更新はFollowRepositoryが一括で適用する。
type Service struct {
	users    UserFinder
	follows  repository.FollowRepository
	notifier FollowNotifier
	metrics  ToggleRecorder
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(users UserFinder, follows repository.FollowRepository, notifier FollowNotifier, metrics ToggleRecorder) *Service {
	return &Service{
		users:    users,
		follows:  follows,
		notifier: notifier,
		metrics:  metrics,
	}
}

// ToggleFollow はactorからtargetへのフォロー状態を反転する。
// フォローしていなければフォローして通知を1件作成し、フォロー中であれば解除する（通知なし）。
func (s *Service) ToggleFollow(ctx context.Context, actorID, targetID string) (*ToggleResult, error) {
	actor, _, err := s.loadPair(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}

	if actor.IsFollowing(targetID) {
		if _, err := s.follows.RemoveEdge(ctx, actorID, targetID); err != nil {
			return nil, fmt.Errorf("failed to unfollow: %w", err)
		}
		s.recordToggle(StateUnfollowed)
		slog.Info("user unfollowed",
			slog.String("actor_id", actorID),
			slog.String("target_id", targetID),
		)
		return &ToggleResult{State: StateUnfollowed}, nil
	}

	created, err := s.follows.AddEdge(ctx, actorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to follow: %w", err)
	}
	return s.afterFollow(ctx, actorID, targetID, created), nil
}

// Follow はactorがtargetをフォローする。既にフォロー中の場合はAlreadyFollowingエラーを返す。
func (s *Service) Follow(ctx context.Context, actorID, targetID string) (*ToggleResult, error) {
	actor, _, err := s.loadPair(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}
	if actor.IsFollowing(targetID) {
		return nil, model.NewAlreadyFollowingError(targetID)
	}

	created, err := s.follows.AddEdge(ctx, actorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to follow: %w", err)
	}
	if !created {
		// 読み取り後に別のリクエストがフォローを完了させた
		return nil, model.NewAlreadyFollowingError(targetID)
	}
	return s.afterFollow(ctx, actorID, targetID, true), nil
}

// Unfollow はactorがtargetのフォローを解除する。フォローしていない場合はNotFollowingエラーを返す。
func (s *Service) Unfollow(ctx context.Context, actorID, targetID string) (*ToggleResult, error) {
	actor, _, err := s.loadPair(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}
	if !actor.IsFollowing(targetID) {
		return nil, model.NewNotFollowingError(targetID)
	}

	removed, err := s.follows.RemoveEdge(ctx, actorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to unfollow: %w", err)
	}
	if !removed {
		return nil, model.NewNotFollowingError(targetID)
	}

	s.recordToggle(StateUnfollowed)
	slog.Info("user unfollowed",
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
	)
	return &ToggleResult{State: StateUnfollowed}, nil
}

// loadPair は自己フォローを検査した上で両ユーザーを取得する。
// 自己フォローの検査はストアへのアクセスより先に行う。
func (s *Service) loadPair(ctx context.Context, actorID, targetID string) (*model.User, *model.User, error) {
	if actorID == targetID {
		return nil, nil, model.NewSelfFollowError()
	}

	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find actor: %w", err)
	}
	if actor == nil {
		return nil, nil, model.NewUserNotFoundError(actorID)
	}

	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find target: %w", err)
	}
	if target == nil {
		return nil, nil, model.NewUserNotFoundError(targetID)
	}

	return actor, target, nil
}

// afterFollow はフォロー成立後の通知作成を行う。
// 通知はこの呼び出しでエッジを作成した場合のみ作成し、失敗しても操作自体は成功として扱う。
func (s *Service) afterFollow(ctx context.Context, actorID, targetID string, created bool) *ToggleResult {
	result := &ToggleResult{State: StateFollowed}
	s.recordToggle(StateFollowed)

	if !created {
		slog.Info("follow edge already created by concurrent request",
			slog.String("actor_id", actorID),
			slog.String("target_id", targetID),
		)
		return result
	}

	if _, err := s.notifier.NotifyFollow(ctx, actorID, targetID); err != nil {
		result.NotificationFailed = true
		if s.metrics != nil {
			s.metrics.RecordNotificationFailure()
		}
		slog.Error("follow notification failed",
			slog.String("actor_id", actorID),
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
		return result
	}

	result.NotificationCreated = true
	slog.Info("user followed",
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
	)
	return result
}

func (s *Service) recordToggle(state string) {
	if s.metrics != nil {
		s.metrics.RecordFollowToggle(state)
	}
}
