// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// IdentityHeader は上流の認証ゲートウェイが検証済みの外部IDを注入するヘッダー。
const IdentityHeader = "X-External-Identity-ID"

// maxIdentityLength は外部IDとして受け付ける最大長。
const maxIdentityLength = 255

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var identityIDContextKey = contextKey("external_identity_id")

// NewIdentityMiddleware はIdentityHeaderから外部IDを読み取り、リクエストコンテキストに注入する。
// ヘッダーがない場合は401を返す。資格情報の検証は上流で完了している前提で、ここでは行わない。
func NewIdentityMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identityID := strings.TrimSpace(r.Header.Get(IdentityHeader))
			if identityID == "" || len(identityID) > maxIdentityLength {
				WriteUnauthorized(w)
				return
			}

			ctx := ContextWithIdentityID(r.Context(), identityID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityIDFromContext はリクエストコンテキストから外部IDを取得する。
// IdentityMiddlewareを通過したリクエストでのみ有効。
func IdentityIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(identityIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("external identity ID not found in context")
	}
	return id, nil
}

// ContextWithIdentityID はコンテキストに外部IDを注入する。
func ContextWithIdentityID(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityIDContextKey, identityID)
}
