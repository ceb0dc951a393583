package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/hitoshi/socialgraph/internal/social"
)

// SocialServiceInterface はフォロー操作のサービスインターフェース。
type SocialServiceInterface interface {
	ToggleFollow(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error)
	Follow(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error)
	Unfollow(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error)
}

// CurrentUserResolver は外部IDからローカルユーザーを取得するインターフェース。
type CurrentUserResolver interface {
	GetByExternalIdentityID(ctx context.Context, externalID string) (*model.User, error)
}

// FollowHandler はフォロー操作のHTTPハンドラー。
// 操作主体は認証済みの外部IDに対応するローカルユーザー。
type FollowHandler struct {
	users   CurrentUserResolver
	service SocialServiceInterface
}

// NewFollowHandler はFollowHandlerを生成する。
func NewFollowHandler(users CurrentUserResolver, service SocialServiceInterface) *FollowHandler {
	return &FollowHandler{
		users:   users,
		service: service,
	}
}

type followOp func(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error)

// Toggle はフォロー状態を反転する。
// POST /api/users/follow/{targetUserId}
func (h *FollowHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.service.ToggleFollow)
}

// Follow はフォローする。既にフォロー中なら409を返す。
// POST /api/users/{targetUserId}/follow
func (h *FollowHandler) Follow(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.service.Follow)
}

// Unfollow はフォローを解除する。フォローしていなければ409を返す。
// DELETE /api/users/{targetUserId}/follow
func (h *FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.service.Unfollow)
}

func (h *FollowHandler) apply(w http.ResponseWriter, r *http.Request, op followOp) {
	identityID, ok := identityFromRequest(w, r)
	if !ok {
		return
	}
	targetID := chi.URLParam(r, "targetUserId")

	actor, err := h.users.GetByExternalIdentityID(r.Context(), identityID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := op(r.Context(), actor.ID, targetID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFollowResponse(result))
}
