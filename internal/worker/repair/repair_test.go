package repair

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

// mockExecutor は呼び出し順にresultsを返す。
type mockExecutor struct {
	queries []string
	results []sql.Result
	errs    []error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	i := len(m.queries)
	m.queries = append(m.queries, query)
	var res sql.Result
	var err error
	if i < len(m.results) {
		res = m.results[i]
	}
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return res, err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestRepairJob_Run_PrunesThenRebuilds(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{
		results: []sql.Result{&fakeResult{rowsAffected: 1}, &fakeResult{rowsAffected: 3}},
	}
	job := NewRepairJob(mock, newTestLogger(&buf))

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(mock.queries) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(mock.queries))
	}
	if !strings.Contains(mock.queries[0], "unnest(u.following)") {
		t.Errorf("first statement should prune following, got %s", mock.queries[0])
	}
	if !strings.Contains(mock.queries[1], "SET followers") {
		t.Errorf("second statement should rebuild followers, got %s", mock.queries[1])
	}
	if report.PrunedUsers != 1 || report.RepairedUsers != 3 {
		t.Errorf("report = %+v, want {1 3}", report)
	}
}

func TestRepairJob_Run_OnlyTouchesInconsistentRows(t *testing.T) {
	if !strings.Contains(rebuildFollowersSQL, "WHERE u.id = sub.id") ||
		!strings.Contains(rebuildFollowersSQL, "NOT (u.followers @> sub.followers") {
		t.Error("rebuild statement should skip rows whose followers already match")
	}
	if !strings.Contains(pruneFollowingSQL, "WHERE EXISTS") {
		t.Error("prune statement should skip rows without dangling references")
	}
}

func TestRepairJob_Run_LogsReport(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{
		results: []sql.Result{&fakeResult{}, &fakeResult{rowsAffected: 2}},
	}
	job := NewRepairJob(mock, newTestLogger(&buf))

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "follow graph repair completed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["repaired_users"] != float64(2) {
		t.Errorf("repaired_users = %v, want 2", entry["repaired_users"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected duration_ms in log entry")
	}
}

func TestRepairJob_Run_PruneError_StopsBeforeRebuild(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{
		errs: []error{errors.New("connection reset")},
	}
	job := NewRepairJob(mock, newTestLogger(&buf))

	_, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(mock.queries) != 1 {
		t.Errorf("expected rebuild to be skipped, got %d statements", len(mock.queries))
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected error log, got %s", buf.String())
	}
}

func TestRepairJob_Run_RowsAffectedError(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{
		results: []sql.Result{&fakeResult{}, &fakeResult{err: errors.New("driver does not support")}},
	}
	job := NewRepairJob(mock, newTestLogger(&buf))

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error when RowsAffected fails")
	}
}
