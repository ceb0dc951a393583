// Package model はドメインモデルを定義する。
package model

import "time"

// User はソーシャルグラフに参加するユーザーを表す。
// Following と Followers は互いに整合している必要がある:
// BがAのFollowingに含まれるとき、かつそのときに限りAはBのFollowersに含まれる。
type User struct {
	ID                 string
	ExternalIdentityID string // 外部IdPのユーザーID。作成後は不変
	Email              string
	FirstName          string
	LastName           string
	Username           string // メールアドレスのローカル部から導出。一意
	ProfilePictureURL  string
	Following          []string
	Followers          []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsFollowing はユーザーが指定IDのユーザーをフォローしているかを返す。
func (u *User) IsFollowing(userID string) bool {
	return containsID(u.Following, userID)
}

// HasFollower は指定IDのユーザーからフォローされているかを返す。
func (u *User) HasFollower(userID string) bool {
	return containsID(u.Followers, userID)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ProfileUpdate はプロフィール更新で変更可能な項目を表す。
// nilのフィールドは変更しない。関係リストと識別子はここからは変更できない。
type ProfileUpdate struct {
	FirstName         *string
	LastName          *string
	ProfilePictureURL *string
}

// IsEmpty は変更対象のフィールドが1つもない場合にtrueを返す。
func (p ProfileUpdate) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.ProfilePictureURL == nil
}
