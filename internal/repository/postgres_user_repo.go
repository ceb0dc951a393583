package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/lib/pq"
)

const userColumns = `id, external_identity_id, email, first_name, last_name, username,
	profile_picture_url, following, followers, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsに共通のScanを抽象化する。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByExternalIdentityID は外部IdPのユーザーIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalIdentityID(ctx context.Context, externalIdentityID string) (*model.User, error) {
	return r.findOne(ctx, "external_identity_id", externalIdentityID)
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username", username)
}

// findOne は一意なカラムでユーザーを1件取得する。columnは呼び出し側の定数のみを渡すこと。
func (r *PostgresUserRepo) findOne(ctx context.Context, column, value string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`,
		value,
	)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by %s: %w", column, err)
	}

	return user, nil
}

// Create はユーザーを作成する。following/followersはカラムのデフォルト（空配列）で初期化される。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, external_identity_id, email, first_name, last_name, username,
			profile_picture_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.ExternalIdentityID, user.Email, user.FirstName, user.LastName, user.Username,
		user.ProfilePictureURL, user.CreatedAt, user.UpdatedAt,
	)
	if constraint, ok := uniqueViolationConstraint(err); ok {
		return fmt.Errorf("failed to insert user (%s): %w", constraint, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	if user.Following == nil {
		user.Following = []string{}
	}
	if user.Followers == nil {
		user.Followers = []string{}
	}
	return nil
}

// UpdateProfile は指定されたフィールドのみを更新し、更新後のユーザーを返す。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			profile_picture_url = COALESCE($4, profile_picture_url),
			updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, nullableString(update.FirstName), nullableString(update.LastName), nullableString(update.ProfilePictureURL),
	)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return user, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.ExternalIdentityID, &user.Email, &user.FirstName, &user.LastName, &user.Username,
		&user.ProfilePictureURL, pq.Array(&user.Following), pq.Array(&user.Followers),
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if user.Following == nil {
		user.Following = []string{}
	}
	if user.Followers == nil {
		user.Followers = []string{}
	}
	return user, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
