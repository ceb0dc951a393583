package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/socialgraph/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

// Create は通知を作成する。
func (r *PostgresNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, from_user_id, to_user_id, type, post_id, comment_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.FromUserID, n.ToUserID, string(n.Type),
		nullableString(n.PostID), nullableString(n.CommentID), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListByRecipient は指定ユーザー宛ての通知を新しい順に返す。
func (r *PostgresNotificationRepo) ListByRecipient(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, from_user_id, to_user_id, type, post_id, comment_id, created_at
		 FROM notifications
		 WHERE to_user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*model.Notification, 0)
	for rows.Next() {
		var (
			n         model.Notification
			typ       string
			postID    sql.NullString
			commentID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.FromUserID, &n.ToUserID, &typ, &postID, &commentID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = model.NotificationType(typ)
		if postID.Valid {
			n.PostID = &postID.String
		}
		if commentID.Valid {
			n.CommentID = &commentID.String
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return notifications, nil
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
