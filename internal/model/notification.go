package model

import "time"

// NotificationType は通知イベントの種別。
type NotificationType string

const (
	NotificationTypeFollow  NotificationType = "follow"
	NotificationTypeLike    NotificationType = "like"
	NotificationTypeComment NotificationType = "comment"
)

// Valid は定義済みの通知種別かどうかを返す。
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeFollow, NotificationTypeLike, NotificationTypeComment:
		return true
	default:
		return false
	}
}

// Notification はユーザー向けの通知を表す。作成後は変更しない。
type Notification struct {
	ID         string
	FromUserID string
	ToUserID   string
	Type       NotificationType
	PostID     *string // 関連する投稿（任意）
	CommentID  *string // 関連するコメント（任意）
	CreatedAt  time.Time
}
