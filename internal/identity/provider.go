// Package identity は外部IdPのユーザーをローカルのユーザーレコードへ再照合する機能を提供する。
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrIdentityNotFound はIdPに指定IDのユーザーが存在しない場合に返される。
var ErrIdentityNotFound = errors.New("identity not found")

// ProviderIdentity はIdPから取得した正規のユーザー属性を表す。
// PrimaryEmail以外は未設定の場合に空文字となる。
type ProviderIdentity struct {
	ExternalID   string
	PrimaryEmail string
	FirstName    string
	LastName     string
	ImageURL     string
}

// Provider は外部IdPのインターフェース。
// Clerk、Firebase Authなど複数のIdPに対応するための抽象化。
type Provider interface {
	// FetchIdentity は外部IDに対応するユーザー属性を取得する。
	// 存在しない場合はErrIdentityNotFoundをラップして返す。
	FetchIdentity(ctx context.Context, externalID string) (*ProviderIdentity, error)
}

// DeriveUsername はメールアドレスの最初の@より前の部分をユーザー名として返す。
// @を含まない、またはローカル部が空の場合はfalseを返す。
func DeriveUsername(email string) (string, bool) {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return "", false
	}
	return local, true
}

// timeoutProvider は1回の取得に上限時間を設ける。
type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// WithTimeout はFetchIdentityの呼び出しごとにtimeoutを適用するProviderを返す。
// timeoutが0以下の場合はpをそのまま返す。
func WithTimeout(p Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		return p
	}
	return &timeoutProvider{next: p, timeout: timeout}
}

func (p *timeoutProvider) FetchIdentity(ctx context.Context, externalID string) (*ProviderIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.next.FetchIdentity(ctx, externalID)
}
