// Package repair はフォロー関係の整合性を修復するバッチジョブを提供する。
// following を正としてfollowersを再計算する。
package repair

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	// 存在しないユーザーを指すfollowingの要素を取り除く。
	pruneFollowingSQL = `UPDATE users u
		SET following = ARRAY(
			SELECT f FROM unnest(u.following) AS f
			WHERE EXISTS (SELECT 1 FROM users x WHERE x.id = f)
		), updated_at = now()
		WHERE EXISTS (
			SELECT 1 FROM unnest(u.following) AS f
			WHERE NOT EXISTS (SELECT 1 FROM users x WHERE x.id = f)
		)`

	// followingから逆引きしたフォロワー集合と異なる行のみ更新する。
	rebuildFollowersSQL = `UPDATE users u
		SET followers = sub.followers, updated_at = now()
		FROM (
			SELECT t.id, ARRAY(
				SELECT f.id FROM users f WHERE t.id = ANY (f.following) ORDER BY f.id
			) AS followers
			FROM users t
		) AS sub
		WHERE u.id = sub.id
		AND NOT (u.followers @> sub.followers AND sub.followers @> u.followers)`
)

// Report は修復ジョブの結果。
type Report struct {
	PrunedUsers   int64
	RepairedUsers int64
}

// RepairJob はusers.followersをusers.followingから再構築するジョブ。
// 冪等: 整合している状態で実行しても何も変更しない。
type RepairJob struct {
	db     Executor
	logger *slog.Logger
}

// NewRepairJob は新しいRepairJobを生成する。
func NewRepairJob(db Executor, logger *slog.Logger) *RepairJob {
	return &RepairJob{
		db:     db,
		logger: logger,
	}
}

// Run は不正なfollowing要素を除去した後、followersを再計算する。
func (j *RepairJob) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	pruned, err := j.exec(ctx, "prune_following", pruneFollowingSQL)
	if err != nil {
		return nil, err
	}

	repaired, err := j.exec(ctx, "rebuild_followers", rebuildFollowersSQL)
	if err != nil {
		return nil, err
	}

	report := &Report{PrunedUsers: pruned, RepairedUsers: repaired}
	duration := time.Since(start)
	j.logger.Info("follow graph repair completed",
		slog.Int64("pruned_users", report.PrunedUsers),
		slog.Int64("repaired_users", report.RepairedUsers),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return report, nil
}

func (j *RepairJob) exec(ctx context.Context, step, query string) (int64, error) {
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("follow graph repair step failed",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("repair step %s failed: %w", step, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to get rows affected",
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", step, err)
	}
	return affected, nil
}
