package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialgraph/internal/identity"
	"github.com/hitoshi/socialgraph/internal/model"
)

// maxProfileBodySize はプロフィール更新リクエストボディの上限。
const maxProfileBodySize = 16 << 10

// ReconcilerInterface は外部IDとローカルユーザーの再照合インターフェース。
type ReconcilerInterface interface {
	Reconcile(ctx context.Context, externalID string) (*identity.Result, error)
}

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByExternalIdentityID(ctx context.Context, externalID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)
}

// UserHandler はユーザーの同期・参照・プロフィール更新のHTTPハンドラー。
type UserHandler struct {
	reconciler ReconcilerInterface
	service    UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(reconciler ReconcilerInterface, service UserServiceInterface) *UserHandler {
	return &UserHandler{
		reconciler: reconciler,
		service:    service,
	}
}

// updateProfileRequest はプロフィール更新のリクエストボディ。
// 未指定のフィールドは変更しない。
type updateProfileRequest struct {
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	ProfilePictureURL *string `json:"profile_picture_url"`
}

// Sync は認証済みの外部IDをローカルユーザーに再照合する。初回は作成して201を返す。
// POST /api/users/sync
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	identityID, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), identityID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, syncResponse{
		User:    toCurrentUserResponse(result.User),
		Created: result.Created,
	})
}

// Me は認証済みユーザー自身の情報を返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identityID, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetByExternalIdentityID(r.Context(), identityID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCurrentUserResponse(user))
}

// GetProfile はユーザー名で公開プロフィールを返す。
// GET /api/users/profile/{username}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := h.service.GetByUsername(r.Context(), username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// UpdateProfile は説明的な属性を更新する。
// PUT /api/users/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identityID, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProfileBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	current, err := h.service.GetByExternalIdentityID(r.Context(), identityID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), current.ID, model.ProfileUpdate{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		ProfilePictureURL: req.ProfilePictureURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCurrentUserResponse(updated))
}
