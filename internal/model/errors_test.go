package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error_IncludesCode(t *testing.T) {
	err := NewSelfFollowError()

	got := err.Error()
	want := "[SELF_FOLLOW] 自分自身をフォローすることはできません。"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIsErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"一致するコード", NewUserNotFoundError("u1"), ErrCodeUserNotFound, true},
		{"異なるコード", NewUserNotFoundError("u1"), ErrCodeSelfFollow, false},
		{"ラップされたAPIError", fmt.Errorf("wrapped: %w", NewAlreadyFollowingError("u2")), ErrCodeAlreadyFollowing, true},
		{"APIError以外", errors.New("boom"), ErrCodeUserNotFound, false},
		{"nil", nil, ErrCodeUserNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsErrorCode(tt.err, tt.code); got != tt.want {
				t.Errorf("IsErrorCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors_DistinctCodes(t *testing.T) {
	errs := []*APIError{
		NewIdentityProviderError("timeout"),
		NewDuplicateIdentityError("ext-1"),
		NewInvalidIdentityError(),
		NewSelfFollowError(),
		NewUserNotFoundError("u1"),
		NewAlreadyFollowingError("u1"),
		NewNotFollowingError("u1"),
		NewInvalidProfileError("too long"),
	}

	seen := make(map[string]bool)
	for _, e := range errs {
		if e.Code == "" || e.Category == "" || e.Action == "" {
			t.Errorf("error %q has empty fields: %+v", e.Code, e)
		}
		if seen[e.Code] {
			t.Errorf("duplicate error code %q", e.Code)
		}
		seen[e.Code] = true
	}
}

func TestUser_IsFollowing(t *testing.T) {
	u := &User{ID: "a", Following: []string{"b", "c"}, Followers: []string{"d"}}

	if !u.IsFollowing("b") {
		t.Error("expected a to follow b")
	}
	if u.IsFollowing("d") {
		t.Error("expected a not to follow d")
	}
	if !u.HasFollower("d") {
		t.Error("expected d to be a follower of a")
	}
	if u.HasFollower("b") {
		t.Error("expected b not to be a follower of a")
	}
}

func TestProfileUpdate_IsEmpty(t *testing.T) {
	name := "Ann"
	if !(ProfileUpdate{}).IsEmpty() {
		t.Error("zero ProfileUpdate should be empty")
	}
	if (ProfileUpdate{FirstName: &name}).IsEmpty() {
		t.Error("ProfileUpdate with FirstName should not be empty")
	}
}

func TestNotificationType_Valid(t *testing.T) {
	for _, typ := range []NotificationType{NotificationTypeFollow, NotificationTypeLike, NotificationTypeComment} {
		if !typ.Valid() {
			t.Errorf("%q should be valid", typ)
		}
	}
	if NotificationType("unfollow").Valid() {
		t.Error("unfollow should not be a valid notification type")
	}
}
