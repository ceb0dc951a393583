package repository

import (
	"context"
	"fmt"
)

// 各側の更新は条件付きで、既に目的の状態にある行には何もしない。
const (
	addFollowingSQL = `UPDATE users SET following = array_append(following, $2::text), updated_at = now()
		WHERE id = $1 AND NOT ($2::text = ANY (following))`
	addFollowerSQL = `UPDATE users SET followers = array_append(followers, $2::text), updated_at = now()
		WHERE id = $1 AND NOT ($2::text = ANY (followers))`
	removeFollowingSQL = `UPDATE users SET following = array_remove(following, $2::text), updated_at = now()
		WHERE id = $1 AND $2::text = ANY (following)`
	removeFollowerSQL = `UPDATE users SET followers = array_remove(followers, $2::text), updated_at = now()
		WHERE id = $1 AND $2::text = ANY (followers)`

	// 相互フォローの同時実行でデッドロックしないよう、ID順に行ロックを取得する。
	lockPairSQL = `SELECT id FROM users WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`
)

// PostgresFollowRepo はusers.following / users.followers の配列を更新するフォローリポジトリ。
type PostgresFollowRepo struct {
	db TxBeginner
}

// NewPostgresFollowRepo はPostgresFollowRepoを生成する。
func NewPostgresFollowRepo(db TxBeginner) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// AddEdge はフォローエッジを両側に追加する。
func (r *PostgresFollowRepo) AddEdge(ctx context.Context, actorID, targetID string) (bool, error) {
	return r.apply(ctx, "add", addFollowingSQL, addFollowerSQL, actorID, targetID)
}

// RemoveEdge はフォローエッジを両側から削除する。
func (r *PostgresFollowRepo) RemoveEdge(ctx context.Context, actorID, targetID string) (bool, error) {
	return r.apply(ctx, "remove", removeFollowingSQL, removeFollowerSQL, actorID, targetID)
}

// apply はactor側、target側の順に更新を適用する。
// どちらかが失敗した場合やctxがキャンセルされた場合はロールバックされ、両側とも変更されない。
func (r *PostgresFollowRepo) apply(ctx context.Context, op, actorSQL, targetSQL, actorID, targetID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, lockPairSQL, actorID, targetID)
	if err != nil {
		return false, fmt.Errorf("failed to lock users: %w", err)
	}
	locked := 0
	for rows.Next() {
		locked++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return false, fmt.Errorf("failed to lock users: %w", err)
	}
	rows.Close()
	if locked != 2 {
		return false, fmt.Errorf("failed to %s follow edge: expected 2 users, found %d", op, locked)
	}

	result, err := tx.ExecContext(ctx, actorSQL, actorID, targetID)
	if err != nil {
		return false, fmt.Errorf("failed to %s following of %s: %w", op, actorID, err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, targetSQL, targetID, actorID); err != nil {
		return false, fmt.Errorf("failed to %s followers of %s: %w", op, targetID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return changed > 0, nil
}

// compile-time interface check
var _ FollowRepository = (*PostgresFollowRepo)(nil)
