package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/socialgraph/internal/model"
)

// NotificationServiceInterface は通知一覧のサービスインターフェース。
type NotificationServiceInterface interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
}

// NotificationHandler は通知のHTTPハンドラー。
type NotificationHandler struct {
	users    CurrentUserResolver
	service  NotificationServiceInterface
	maxLimit int
}

// NewNotificationHandler はNotificationHandlerを生成する。
// maxLimitは1回に返す通知の最大件数。
func NewNotificationHandler(users CurrentUserResolver, service NotificationServiceInterface, maxLimit int) *NotificationHandler {
	return &NotificationHandler{
		users:    users,
		service:  service,
		maxLimit: maxLimit,
	}
}

// List は認証済みユーザー宛ての通知を新しい順に返す。
// GET /api/notifications?limit=N
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	identityID, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	limit := h.maxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_LIMIT",
				Message:  "limitは正の整数で指定してください。",
				Category: "validation",
				Action:   "limitパラメータを確認してください。",
			})
			return
		}
		if n < limit {
			limit = n
		}
	}

	user, err := h.users.GetByExternalIdentityID(r.Context(), identityID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	list, err := h.service.ListForUser(r.Context(), user.ID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNotificationListResponse(list))
}
