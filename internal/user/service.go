// Package user はユーザーの参照とプロフィール更新のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/hitoshi/socialgraph/internal/repository"
)

const (
	maxNameLength = 100
	maxURLLength  = 2048
)

// TextSanitizer はプロフィールのテキスト項目を無害化するインターフェース。
type TextSanitizer interface {
	Sanitize(text string) string
}

// URLValidator はプロフィール画像URLを検証するインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service はユーザーのサービス層。
// ユーザーの作成は行わない（identity.Reconcilerのみが作成する）。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer TextSanitizer
	urls      URLValidator
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer TextSanitizer, urls URLValidator) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		urls:      urls,
	}
}

// GetByID はIDでユーザーを取得する。
func (s *Service) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return user, nil
}

// GetByUsername はユーザー名でユーザーを取得する。
func (s *Service) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(username)
	}
	return user, nil
}

// GetByExternalIdentityID は外部IdPのユーザーIDでユーザーを取得する。
// 未同期のユーザーはUserNotFoundとなる。
func (s *Service) GetByExternalIdentityID(ctx context.Context, externalID string) (*model.User, error) {
	if externalID == "" {
		return nil, model.NewInvalidIdentityError()
	}
	user, err := s.userRepo.FindByExternalIdentityID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(externalID)
	}
	return user, nil
}

// UpdateProfile は説明的な属性（姓名、プロフィール画像URL）を更新する。
// テキストは無害化し、画像URLは外部の公開ホストであることを検証する。
// 空文字列のURLは画像の削除として扱う。
func (s *Service) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	if update.IsEmpty() {
		return nil, model.NewInvalidProfileError("更新する項目がありません")
	}

	clean, err := s.normalize(update)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, clean)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	slog.Info("プロフィールを更新しました",
		slog.String("user_id", userID),
	)
	return user, nil
}

func (s *Service) normalize(update model.ProfileUpdate) (model.ProfileUpdate, error) {
	var out model.ProfileUpdate

	if update.FirstName != nil {
		v, err := s.cleanName("first_name", *update.FirstName)
		if err != nil {
			return out, err
		}
		out.FirstName = &v
	}
	if update.LastName != nil {
		v, err := s.cleanName("last_name", *update.LastName)
		if err != nil {
			return out, err
		}
		out.LastName = &v
	}
	if update.ProfilePictureURL != nil {
		v := *update.ProfilePictureURL
		if v != "" {
			if len(v) > maxURLLength {
				return out, model.NewInvalidProfileError("profile_picture_url が長すぎます")
			}
			if err := s.urls.ValidateURL(v); err != nil {
				return out, model.NewInvalidProfileError(fmt.Sprintf("profile_picture_url が不正です: %v", err))
			}
		}
		out.ProfilePictureURL = &v
	}

	return out, nil
}

func (s *Service) cleanName(field, value string) (string, error) {
	v := s.sanitizer.Sanitize(value)
	if utf8.RuneCountInString(v) > maxNameLength {
		return "", model.NewInvalidProfileError(fmt.Sprintf("%s は%d文字以内で入力してください", field, maxNameLength))
	}
	return v, nil
}
