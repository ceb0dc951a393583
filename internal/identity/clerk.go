package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultClerkAPIURL = "https://api.clerk.com/v1"

	// maxClerkResponseSize はユーザー取得レスポンスの最大読み込みサイズ。
	maxClerkResponseSize = 1 << 20
)

// ClerkConfig はClerk Backend APIの設定。
type ClerkConfig struct {
	SecretKey string
	// テスト用にオーバーライド可能なURL
	APIURL string
	// nilの場合はhttp.DefaultClientを使用する
	HTTPClient *http.Client
}

// ClerkProvider はClerk Backend APIからユーザー情報を取得する。
type ClerkProvider struct {
	config ClerkConfig
	client *http.Client
}

// NewClerkProvider はClerkProviderを生成する。
func NewClerkProvider(config ClerkConfig) *ClerkProvider {
	if config.APIURL == "" {
		config.APIURL = defaultClerkAPIURL
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")

	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &ClerkProvider{config: config, client: client}
}

// clerkEmailAddress はClerkのメールアドレスオブジェクト。
type clerkEmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// clerkUser はClerkのユーザー取得エンドポイントのレスポンス。
type clerkUser struct {
	ID                    string              `json:"id"`
	PrimaryEmailAddressID string              `json:"primary_email_address_id"`
	EmailAddresses        []clerkEmailAddress `json:"email_addresses"`
	FirstName             *string             `json:"first_name"`
	LastName              *string             `json:"last_name"`
	ImageURL              string              `json:"image_url"`
}

// primaryEmail はprimary_email_address_idに一致するアドレスを返す。
// 一致するものがなければ先頭のアドレスを返す。
func (u *clerkUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID && e.EmailAddress != "" {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// FetchIdentity はGET /users/{user_id} でユーザー情報を取得する。
func (p *ClerkProvider) FetchIdentity(ctx context.Context, externalID string) (*ProviderIdentity, error) {
	endpoint := p.config.APIURL + "/users/" + url.PathEscape(externalID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create clerk request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clerk request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxClerkResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read clerk response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("clerk user %s: %w", externalID, ErrIdentityNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clerk user fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var user clerkUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse clerk response: %w", err)
	}

	identity := &ProviderIdentity{
		ExternalID:   user.ID,
		PrimaryEmail: user.primaryEmail(),
		ImageURL:     user.ImageURL,
	}
	if user.FirstName != nil {
		identity.FirstName = *user.FirstName
	}
	if user.LastName != nil {
		identity.LastName = *user.LastName
	}
	if identity.ExternalID == "" {
		identity.ExternalID = externalID
	}

	return identity, nil
}

// compile-time interface check
var _ Provider = (*ClerkProvider)(nil)
