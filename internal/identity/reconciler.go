package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/socialgraph/internal/metrics"
	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/hitoshi/socialgraph/internal/repository"
)

// UserStore は再照合に必要なユーザー永続化操作。
// repository.UserRepositoryの部分集合として定義する。
type UserStore interface {
	FindByExternalIdentityID(ctx context.Context, externalIdentityID string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
}

// ReconcileRecorder は再照合のメトリクス記録インターフェース。
type ReconcileRecorder interface {
	RecordReconcile(outcome string)
	RecordIdentityFetchLatency(duration time.Duration)
}

// Result は再照合の結果。Createdはこの呼び出しでユーザーを作成した場合にtrueとなる。
type Result struct {
	User    *model.User
	Created bool
}

// Reconciler は外部IDをちょうど1件のローカルユーザーへ対応付ける。
// ユーザーレコードを作成するのはReconcilerのみ。
// プロセス内のキャッシュやロックは持たず、一意性はストアの一意制約に依存する。
type Reconciler struct {
	users    UserStore
	provider Provider
	metrics  ReconcileRecorder

	newID func() string
	now   func() time.Time
}

// NewReconciler はReconcilerを生成する。metricsはnilでもよい。
func NewReconciler(users UserStore, provider Provider, metrics ReconcileRecorder) *Reconciler {
	return &Reconciler{
		users:    users,
		provider: provider,
		metrics:  metrics,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
}

// Reconcile は外部IDに対応するユーザーを返す。存在しなければIdPから属性を取得して作成する。
//
// 既存ユーザーが見つかった場合はIdPを呼び出さずに返す。
// 同一IDの同時初回呼び出しで一意制約違反となった場合は、勝者のレコードを再取得して返す。
func (r *Reconciler) Reconcile(ctx context.Context, externalID string) (*Result, error) {
	if externalID == "" {
		return nil, model.NewInvalidIdentityError()
	}

	existing, err := r.users.FindByExternalIdentityID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external identity: %w", err)
	}
	if existing != nil {
		r.record(metrics.ReconcileExisting)
		return &Result{User: existing, Created: false}, nil
	}

	identity, err := r.fetchIdentity(ctx, externalID)
	if err != nil {
		r.record(metrics.ReconcileProviderError)
		return nil, err
	}

	username, ok := DeriveUsername(identity.PrimaryEmail)
	if !ok {
		r.record(metrics.ReconcileProviderError)
		slog.Warn("identity provider returned unusable email",
			slog.String("external_identity_id", externalID),
		)
		return nil, model.NewIdentityProviderError("メールアドレスが取得できません")
	}

	now := r.now()
	user := &model.User{
		ID:                 r.newID(),
		ExternalIdentityID: externalID,
		Email:              identity.PrimaryEmail,
		FirstName:          identity.FirstName,
		LastName:           identity.LastName,
		Username:           username,
		ProfilePictureURL:  identity.ImageURL,
		Following:          []string{},
		Followers:          []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := r.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return r.recoverDuplicate(ctx, externalID, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	r.record(metrics.ReconcileCreated)
	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("external_identity_id", externalID),
		slog.String("username", user.Username),
	)

	return &Result{User: user, Created: true}, nil
}

// fetchIdentity はIdPから属性を取得する。失敗時はIdentityProviderErrorに変換する。
func (r *Reconciler) fetchIdentity(ctx context.Context, externalID string) (*ProviderIdentity, error) {
	start := r.now()
	identity, err := r.provider.FetchIdentity(ctx, externalID)
	if r.metrics != nil {
		r.metrics.RecordIdentityFetchLatency(r.now().Sub(start))
	}

	if err != nil {
		slog.Warn("identity provider fetch failed",
			slog.String("external_identity_id", externalID),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, model.NewIdentityProviderError("ユーザーが存在しません")
		}
		return nil, model.NewIdentityProviderError("取得に失敗しました")
	}
	if identity == nil {
		return nil, model.NewIdentityProviderError("空のレスポンス")
	}

	return identity, nil
}

// recoverDuplicate は作成時の一意制約違反から復旧する。
// 同じ外部IDのレコードが存在すれば、それが競合した書き込みの結果なので返す。
// 存在しなければユーザー名が別の外部IDと衝突しているため、DuplicateIdentityErrorを返す。
func (r *Reconciler) recoverDuplicate(ctx context.Context, externalID string, cause error) (*Result, error) {
	winner, err := r.users.FindByExternalIdentityID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read user after duplicate: %w", err)
	}

	if winner == nil {
		r.record(metrics.ReconcileDuplicate)
		slog.Warn("username already owned by another identity",
			slog.String("external_identity_id", externalID),
			slog.String("error", cause.Error()),
		)
		return nil, model.NewDuplicateIdentityError(externalID)
	}

	r.record(metrics.ReconcileRecovered)
	slog.Info("concurrent reconcile resolved by re-read",
		slog.String("user_id", winner.ID),
		slog.String("external_identity_id", externalID),
	)
	return &Result{User: winner, Created: false}, nil
}

func (r *Reconciler) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordReconcile(outcome)
	}
}
