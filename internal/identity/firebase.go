package identity

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// firebaseUserGetter はfirebase auth.Clientのうちユーザー取得に必要な部分。
type firebaseUserGetter interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

// FirebaseProvider はFirebase Authenticationからユーザー情報を取得する。
type FirebaseProvider struct {
	client firebaseUserGetter
}

// NewFirebaseProvider はサービスアカウントの認証情報JSONからFirebaseProviderを生成する。
func NewFirebaseProvider(ctx context.Context, credentialsJSON []byte) (*FirebaseProvider, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{}, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("firebase init failed: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client init failed: %w", err)
	}

	return &FirebaseProvider{client: client}, nil
}

// FetchIdentity はFirebaseのUIDでユーザー情報を取得する。
// Firebaseは姓名を分けて保持しないため、表示名を最初の空白で分割する。
func (p *FirebaseProvider) FetchIdentity(ctx context.Context, externalID string) (*ProviderIdentity, error) {
	record, err := p.client.GetUser(ctx, externalID)
	if auth.IsUserNotFound(err) {
		return nil, fmt.Errorf("firebase user %s: %w", externalID, ErrIdentityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("firebase user fetch failed: %w", err)
	}
	if record == nil || record.UserInfo == nil {
		return nil, fmt.Errorf("firebase user %s: empty user record", externalID)
	}

	firstName, lastName := splitDisplayName(record.DisplayName)
	return &ProviderIdentity{
		ExternalID:   record.UID,
		PrimaryEmail: record.Email,
		FirstName:    firstName,
		LastName:     lastName,
		ImageURL:     record.PhotoURL,
	}, nil
}

func splitDisplayName(displayName string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(displayName), " ")
	return first, strings.TrimSpace(last)
}

// compile-time interface check
var _ Provider = (*FirebaseProvider)(nil)
