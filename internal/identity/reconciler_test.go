package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/socialgraph/internal/metrics"
	"github.com/hitoshi/socialgraph/internal/model"
	"github.com/hitoshi/socialgraph/internal/repository"
)

// --- モック定義 ---

// memoryUserStore はexternal_identity_idとusernameの一意制約を再現するインメモリストア。
type memoryUserStore struct {
	mu      sync.Mutex
	byExtID map[string]*model.User
	byName  map[string]*model.User
	creates int
	findErr error
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		byExtID: make(map[string]*model.User),
		byName:  make(map[string]*model.User),
	}
}

func (s *memoryUserStore) FindByExternalIdentityID(_ context.Context, externalID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.byExtID[externalID], nil
}

func (s *memoryUserStore) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byExtID[user.ExternalIdentityID]; ok {
		return fmt.Errorf("insert: %w", repository.ErrDuplicateKey)
	}
	if _, ok := s.byName[user.Username]; ok {
		return fmt.Errorf("insert: %w", repository.ErrDuplicateKey)
	}
	s.byExtID[user.ExternalIdentityID] = user
	s.byName[user.Username] = user
	s.creates++
	return nil
}

func (s *memoryUserStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byExtID)
}

type mockProvider struct {
	calls           atomic.Int32
	fetchIdentityFn func(ctx context.Context, externalID string) (*ProviderIdentity, error)
}

func (m *mockProvider) FetchIdentity(ctx context.Context, externalID string) (*ProviderIdentity, error) {
	m.calls.Add(1)
	if m.fetchIdentityFn != nil {
		return m.fetchIdentityFn(ctx, externalID)
	}
	return nil, errors.New("not configured")
}

type mockReconcileRecorder struct {
	mu       sync.Mutex
	outcomes []string
	fetches  int
}

func (m *mockReconcileRecorder) RecordReconcile(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockReconcileRecorder) RecordIdentityFetchLatency(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
}

// --- compile-time interface checks ---
var _ UserStore = (*memoryUserStore)(nil)
var _ UserStore = (repository.UserRepository)(nil)
var _ Provider = (*mockProvider)(nil)
var _ ReconcileRecorder = (*mockReconcileRecorder)(nil)

func annProvider() *mockProvider {
	return &mockProvider{
		fetchIdentityFn: func(ctx context.Context, externalID string) (*ProviderIdentity, error) {
			return &ProviderIdentity{
				ExternalID:   externalID,
				PrimaryEmail: "ann@example.com",
				FirstName:    "Ann",
			}, nil
		},
	}
}

// --- テスト ---

func TestReconcile_NewIdentity_CreatesUserWithDefaults(t *testing.T) {
	store := newMemoryUserStore()
	rec := NewReconciler(store, annProvider(), nil)

	result, err := rec.Reconcile(context.Background(), "ext-ann")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Created {
		t.Error("expected Created = true for first sighting")
	}

	u := result.User
	if u.Username != "ann" {
		t.Errorf("Username = %q, want %q", u.Username, "ann")
	}
	if u.FirstName != "Ann" {
		t.Errorf("FirstName = %q, want %q", u.FirstName, "Ann")
	}
	if u.LastName != "" {
		t.Errorf("LastName = %q, want empty", u.LastName)
	}
	if u.ProfilePictureURL != "" {
		t.Errorf("ProfilePictureURL = %q, want empty", u.ProfilePictureURL)
	}
	if u.Email != "ann@example.com" {
		t.Errorf("Email = %q, want ann@example.com", u.Email)
	}
	if u.ExternalIdentityID != "ext-ann" {
		t.Errorf("ExternalIdentityID = %q, want ext-ann", u.ExternalIdentityID)
	}
	if u.ID == "" {
		t.Error("expected generated ID")
	}
	if u.Following == nil || len(u.Following) != 0 || u.Followers == nil || len(u.Followers) != 0 {
		t.Errorf("expected empty non-nil relationship lists, got %v / %v", u.Following, u.Followers)
	}
}

func TestReconcile_ExistingUser_SkipsProvider(t *testing.T) {
	store := newMemoryUserStore()
	existing := &model.User{ID: "u1", ExternalIdentityID: "ext-1", Username: "bob"}
	store.byExtID["ext-1"] = existing
	store.byName["bob"] = existing

	provider := &mockProvider{}
	rec := NewReconciler(store, provider, nil)

	result, err := rec.Reconcile(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.User.ID != "u1" || result.Created {
		t.Errorf("result = %+v, want existing u1 not created", result)
	}
	if provider.calls.Load() != 0 {
		t.Errorf("provider called %d times, want 0", provider.calls.Load())
	}
}

func TestReconcile_SequentialCalls_ReturnSameUser(t *testing.T) {
	store := newMemoryUserStore()
	provider := annProvider()
	rec := NewReconciler(store, provider, nil)
	ctx := context.Background()

	first, err := rec.Reconcile(ctx, "ext-ann")
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	second, err := rec.Reconcile(ctx, "ext-ann")
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	if first.User.ID != second.User.ID {
		t.Errorf("IDs differ: %q vs %q", first.User.ID, second.User.ID)
	}
	if second.Created {
		t.Error("second call should not report Created")
	}
	if store.count() != 1 {
		t.Errorf("record count = %d, want 1", store.count())
	}
	if provider.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls.Load())
	}
}

func TestReconcile_ConcurrentFirstCalls_CreateExactlyOneRecord(t *testing.T) {
	const workers = 8

	store := newMemoryUserStore()

	// 全ゴルーチンがルックアップを通過してからCreateに進むよう、IdP呼び出しで待ち合わせる
	var arrived atomic.Int32
	release := make(chan struct{})
	provider := &mockProvider{
		fetchIdentityFn: func(ctx context.Context, externalID string) (*ProviderIdentity, error) {
			if arrived.Add(1) == workers {
				close(release)
			}
			<-release
			return &ProviderIdentity{PrimaryEmail: "ann@example.com", FirstName: "Ann"}, nil
		},
	}
	recorder := &mockReconcileRecorder{}
	rec := NewReconciler(store, provider, recorder)

	var wg sync.WaitGroup
	ids := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := rec.Reconcile(context.Background(), "ext-ann")
			errs[i] = err
			if err == nil {
				ids[i] = result.User.ID
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d error: %v", i, err)
		}
	}
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Errorf("worker %d got ID %q, want %q", i, ids[i], ids[0])
		}
	}
	if store.count() != 1 {
		t.Errorf("record count = %d, want 1", store.count())
	}

	created, recovered := 0, 0
	for _, o := range recorder.outcomes {
		switch o {
		case metrics.ReconcileCreated:
			created++
		case metrics.ReconcileRecovered:
			recovered++
		}
	}
	if created != 1 || recovered != workers-1 {
		t.Errorf("created=%d recovered=%d, want 1 and %d", created, recovered, workers-1)
	}
}

func TestReconcile_UsernameOwnedByOtherIdentity_ReturnsDuplicateIdentityError(t *testing.T) {
	store := newMemoryUserStore()
	other := &model.User{ID: "u-other", ExternalIdentityID: "ext-other", Username: "ann"}
	store.byExtID["ext-other"] = other
	store.byName["ann"] = other

	rec := NewReconciler(store, annProvider(), nil)

	_, err := rec.Reconcile(context.Background(), "ext-ann")
	if !model.IsErrorCode(err, model.ErrCodeDuplicateIdentity) {
		t.Fatalf("error = %v, want DUPLICATE_IDENTITY", err)
	}
	if store.count() != 1 {
		t.Errorf("record count = %d, want 1", store.count())
	}
}

func TestReconcile_ProviderFailures_ReturnIdentityProviderError(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, externalID string) (*ProviderIdentity, error)
	}{
		{
			name: "ネットワークエラー",
			fn: func(ctx context.Context, externalID string) (*ProviderIdentity, error) {
				return nil, errors.New("dial tcp: connection refused")
			},
		},
		{
			name: "IdPにユーザーが存在しない",
			fn: func(ctx context.Context, externalID string) (*ProviderIdentity, error) {
				return nil, fmt.Errorf("lookup: %w", ErrIdentityNotFound)
			},
		},
		{
			name: "メールアドレスなし",
			fn: func(ctx context.Context, externalID string) (*ProviderIdentity, error) {
				return &ProviderIdentity{FirstName: "Ann"}, nil
			},
		},
		{
			name: "ローカル部が空のメールアドレス",
			fn: func(ctx context.Context, externalID string) (*ProviderIdentity, error) {
				return &ProviderIdentity{PrimaryEmail: "@example.com"}, nil
			},
		},
		{
			name: "nilレスポンス",
			fn: func(ctx context.Context, externalID string) (*ProviderIdentity, error) {
				return nil, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryUserStore()
			recorder := &mockReconcileRecorder{}
			rec := NewReconciler(store, &mockProvider{fetchIdentityFn: tt.fn}, recorder)

			_, err := rec.Reconcile(context.Background(), "ext-1")
			if !model.IsErrorCode(err, model.ErrCodeIdentityProvider) {
				t.Fatalf("error = %v, want IDENTITY_PROVIDER_ERROR", err)
			}
			if store.count() != 0 {
				t.Errorf("record count = %d, want 0", store.count())
			}
			if len(recorder.outcomes) != 1 || recorder.outcomes[0] != metrics.ReconcileProviderError {
				t.Errorf("outcomes = %v, want [%s]", recorder.outcomes, metrics.ReconcileProviderError)
			}
		})
	}
}

func TestReconcile_EmptyExternalID_ReturnsInvalidIdentity(t *testing.T) {
	provider := &mockProvider{}
	rec := NewReconciler(newMemoryUserStore(), provider, nil)

	_, err := rec.Reconcile(context.Background(), "")
	if !model.IsErrorCode(err, model.ErrCodeInvalidIdentity) {
		t.Fatalf("error = %v, want INVALID_IDENTITY", err)
	}
	if provider.calls.Load() != 0 {
		t.Error("provider should not be called for empty id")
	}
}

func TestReconcile_StoreError_IsWrapped(t *testing.T) {
	store := newMemoryUserStore()
	store.findErr = errors.New("db down")
	rec := NewReconciler(store, annProvider(), nil)

	_, err := rec.Reconcile(context.Background(), "ext-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store failure should not be an APIError, got %v", apiErr)
	}
	if !errors.Is(err, store.findErr) {
		t.Errorf("error should wrap store error, got %v", err)
	}
}

func TestReconcile_RecordsMetrics(t *testing.T) {
	recorder := &mockReconcileRecorder{}
	rec := NewReconciler(newMemoryUserStore(), annProvider(), recorder)
	ctx := context.Background()

	if _, err := rec.Reconcile(ctx, "ext-ann"); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Reconcile(ctx, "ext-ann"); err != nil {
		t.Fatal(err)
	}

	want := []string{metrics.ReconcileCreated, metrics.ReconcileExisting}
	if len(recorder.outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", recorder.outcomes, want)
	}
	for i := range want {
		if recorder.outcomes[i] != want[i] {
			t.Errorf("outcomes[%d] = %q, want %q", i, recorder.outcomes[i], want[i])
		}
	}
	if recorder.fetches != 1 {
		t.Errorf("fetch latency observations = %d, want 1", recorder.fetches)
	}
}

func TestDeriveUsername(t *testing.T) {
	tests := []struct {
		email  string
		want   string
		wantOK bool
	}{
		{"ann@example.com", "ann", true},
		{"first.last+tag@example.com", "first.last+tag", true},
		{"a@b@c", "a", true},
		{"no-at-sign", "", false},
		{"@example.com", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			got, ok := DeriveUsername(tt.email)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("DeriveUsername(%q) = %q, %v; want %q, %v", tt.email, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
