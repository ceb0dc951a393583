// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, identity, social, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeIdentityProvider  = "IDENTITY_PROVIDER_ERROR"
	ErrCodeDuplicateIdentity = "DUPLICATE_IDENTITY"
	ErrCodeInvalidIdentity   = "INVALID_IDENTITY"
	ErrCodeSelfFollow        = "SELF_FOLLOW"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeAlreadyFollowing  = "ALREADY_FOLLOWING"
	ErrCodeNotFollowing      = "NOT_FOLLOWING"
	ErrCodeInvalidProfile    = "INVALID_PROFILE"
)

// IsErrorCode はerrがAPIErrorであり、指定コードを持つかを返す。
func IsErrorCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewIdentityProviderError は外部IdPからの取得失敗エラーを生成する。
// 取得自体の失敗と、利用可能なメールアドレスがない場合の両方で使用する。
func NewIdentityProviderError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeIdentityProvider,
		Message:  fmt.Sprintf("認証プロバイダーからユーザー情報を取得できませんでした: %s", reason),
		Category: "identity",
		Action:   "しばらく待ってから再度お試しください。解決しない場合はアカウントのメールアドレス設定を確認してください。",
	}
}

// NewDuplicateIdentityError はユーザー作成時の一意制約違反エラーを生成する。
func NewDuplicateIdentityError(externalIdentityID string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateIdentity,
		Message:  fmt.Sprintf("ユーザーは既に登録されています: %s", externalIdentityID),
		Category: "identity",
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidIdentityError は外部IdPのユーザーIDが空の場合のエラーを生成する。
func NewInvalidIdentityError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIdentity,
		Message:  "外部認証IDが指定されていません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewSelfFollowError は自分自身をフォローしようとした場合のエラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFollow,
		Message:  "自分自身をフォローすることはできません。",
		Category: "social",
		Action:   "フォロー対象のユーザーを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", userID),
		Category: "social",
		Action:   "ユーザーIDまたはユーザー名を確認してください。",
	}
}

// NewAlreadyFollowingError は既にフォロー済みのユーザーを再度フォローしようとした場合のエラーを生成する。
func NewAlreadyFollowingError(targetID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyFollowing,
		Message:  fmt.Sprintf("このユーザーは既にフォローしています: %s", targetID),
		Category: "social",
		Action:   "フォロー一覧を確認してください。",
	}
}

// NewNotFollowingError はフォローしていないユーザーのフォローを解除しようとした場合のエラーを生成する。
func NewNotFollowingError(targetID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFollowing,
		Message:  fmt.Sprintf("このユーザーをフォローしていません: %s", targetID),
		Category: "social",
		Action:   "フォロー一覧を確認してください。",
	}
}

// NewInvalidProfileError はプロフィール更新内容が不正な場合のエラーを生成する。
func NewInvalidProfileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfile,
		Message:  fmt.Sprintf("プロフィールの内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
