package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/socialgraph/internal/middleware"
	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/hitoshi/socialgraph/internal/social"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// profileResponse は公開プロフィールのレスポンス。
type profileResponse struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	ProfilePictureURL string    `json:"profile_picture_url"`
	Following         []string  `json:"following"`
	Followers         []string  `json:"followers"`
	CreatedAt         time.Time `json:"created_at"`
}

// currentUserResponse は本人向けのユーザーレスポンス。公開プロフィールに識別情報を加える。
type currentUserResponse struct {
	profileResponse
	ExternalIdentityID string    `json:"external_identity_id"`
	Email              string    `json:"email"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type syncResponse struct {
	User    currentUserResponse `json:"user"`
	Created bool                `json:"created"`
}

type followResponse struct {
	State               string `json:"state"`
	NotificationCreated bool   `json:"notification_created"`
	NotificationFailed  bool   `json:"notification_failed"`
}

type notificationResponse struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Type       string    `json:"type"`
	PostID     *string   `json:"post_id"`
	CommentID  *string   `json:"comment_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type notificationListResponse struct {
	Notifications []notificationResponse `json:"notifications"`
}

func toProfileResponse(u *model.User) profileResponse {
	return profileResponse{
		ID:                u.ID,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		ProfilePictureURL: u.ProfilePictureURL,
		Following:         nonNil(u.Following),
		Followers:         nonNil(u.Followers),
		CreatedAt:         u.CreatedAt,
	}
}

func toCurrentUserResponse(u *model.User) currentUserResponse {
	return currentUserResponse{
		profileResponse:    toProfileResponse(u),
		ExternalIdentityID: u.ExternalIdentityID,
		Email:              u.Email,
		UpdatedAt:          u.UpdatedAt,
	}
}

func toFollowResponse(r *social.ToggleResult) followResponse {
	return followResponse{
		State:               r.State,
		NotificationCreated: r.NotificationCreated,
		NotificationFailed:  r.NotificationFailed,
	}
}

func toNotificationListResponse(list []*model.Notification) notificationListResponse {
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, notificationResponse{
			ID:         n.ID,
			FromUserID: n.FromUserID,
			ToUserID:   n.ToUserID,
			Type:       string(n.Type),
			PostID:     n.PostID,
			CommentID:  n.CommentID,
			CreatedAt:  n.CreatedAt,
		})
	}
	return notificationListResponse{Notifications: out}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

func writeInvalidRequest(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// identityFromRequest はIdentityMiddlewareが注入した外部IDを返す。
// 取得できない場合は401を書き込み、falseを返す。
func identityFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return "", false
	}
	return identityID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeSelfFollow, model.ErrCodeInvalidProfile:
		return http.StatusBadRequest
	case model.ErrCodeInvalidIdentity:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyFollowing, model.ErrCodeNotFollowing, model.ErrCodeDuplicateIdentity:
		return http.StatusConflict
	case model.ErrCodeIdentityProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
