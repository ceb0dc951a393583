// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/socialgraph/internal/model"
)

// ErrDuplicateKey は一意制約違反を表す。
// external_identity_id または username の重複時にラップして返される。
var ErrDuplicateKey = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExternalIdentityID は外部IdPのユーザーIDでユーザーを取得する。見つからない場合はnilを返す。
	FindByExternalIdentityID(ctx context.Context, externalIdentityID string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。一意制約違反の場合はErrDuplicateKeyをラップして返す。
	// Following と Followers は空で作成される。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile は説明的な属性のみを部分更新し、更新後のユーザーを返す。
	// 見つからない場合はnilを返す。
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error)
}

// FollowRepository はフォロー関係の永続化インターフェース。
// actor側の更新を先に、target側の更新を後に、同一トランザクションで適用する。
// 各側の更新は条件付きの集合操作であり、それ単体で冪等となる。
type FollowRepository interface {
	// AddEdge は actor.following に targetID を、target.followers に actorID を追加する。
	// この呼び出しで actor 側にエッジが新規作成された場合にtrueを返す。
	AddEdge(ctx context.Context, actorID, targetID string) (bool, error)

	// RemoveEdge は actor.following から targetID を、target.followers から actorID を削除する。
	// この呼び出しで actor 側のエッジが削除された場合にtrueを返す。
	RemoveEdge(ctx context.Context, actorID, targetID string) (bool, error)
}

// NotificationRepository は通知データの永続化インターフェース。
type NotificationRepository interface {
	// Create は通知を作成する。
	Create(ctx context.Context, notification *model.Notification) error

	// ListByRecipient は指定ユーザー宛ての通知を新しい順に最大limit件返す。
	ListByRecipient(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
