package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialgraph/internal/identity"
	"github.com/hitoshi/socialgraph/internal/middleware"
	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/hitoshi/socialgraph/internal/social"
)

// --- モック定義 ---

type mockReconciler struct {
	reconcileFn func(ctx context.Context, externalID string) (*identity.Result, error)
}

func (m *mockReconciler) Reconcile(ctx context.Context, externalID string) (*identity.Result, error) {
	return m.reconcileFn(ctx, externalID)
}

type mockUserService struct {
	getByUsernameFn   func(ctx context.Context, username string) (*model.User, error)
	getByExternalIDFn func(ctx context.Context, externalID string) (*model.User, error)
	updateProfileFn   func(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)
}

func (m *mockUserService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, model.NewUserNotFoundError(username)
}

func (m *mockUserService) GetByExternalIdentityID(ctx context.Context, externalID string) (*model.User, error) {
	if m.getByExternalIDFn != nil {
		return m.getByExternalIDFn(ctx, externalID)
	}
	return nil, model.NewUserNotFoundError(externalID)
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, update)
	}
	return nil, nil
}

type mockSocialService struct {
	toggleFn   func(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error)
	followFn   func(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error)
	unfollowFn func(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error)
}

func (m *mockSocialService) ToggleFollow(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error) {
	return m.toggleFn(ctx, actorID, targetID)
}

func (m *mockSocialService) Follow(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error) {
	return m.followFn(ctx, actorID, targetID)
}

func (m *mockSocialService) Unfollow(ctx context.Context, actorID, targetID string) (*social.ToggleResult, error) {
	return m.unfollowFn(ctx, actorID, targetID)
}

type mockNotificationService struct {
	listFn func(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
}

func (m *mockNotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	return m.listFn(ctx, userID, limit)
}

var (
	_ ReconcilerInterface          = (*mockReconciler)(nil)
	_ UserServiceInterface         = (*mockUserService)(nil)
	_ SocialServiceInterface       = (*mockSocialService)(nil)
	_ NotificationServiceInterface = (*mockNotificationService)(nil)
)

// --- テストヘルパー ---

// withIdentity はテスト用にコンテキストへ外部IDを注入する。
func withIdentity(r *http.Request, identityID string) *http.Request {
	return r.WithContext(middleware.ContextWithIdentityID(r.Context(), identityID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// currentUserService は外部ID ext-alice に対応するユーザーを返すモック。
func currentUserService() *mockUserService {
	return &mockUserService{
		getByExternalIDFn: func(ctx context.Context, externalID string) (*model.User, error) {
			if externalID == "ext-alice" {
				return &model.User{ID: "alice", ExternalIdentityID: "ext-alice", Username: "alice"}, nil
			}
			return nil, model.NewUserNotFoundError(externalID)
		},
	}
}
