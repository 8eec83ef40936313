// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// Account はAirtable OAuthでログインしたオペレーターを表す。
// 初回ログイン時に作成され、ログイン・リフレッシュのたびにトークンが更新される。
type Account struct {
	ID             string
	AirtableUserID string
	Email          string
	AccessToken    string
	RefreshToken   string // PATログインの場合は空
	Profile        Profile
	LoginAt        time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile はAirtableから取得したプロフィールのキャッシュ。
// アクセス可能なベース一覧を含む。
type Profile struct {
	Email string `json:"email,omitempty"`
	Bases []Base `json:"bases"`
}

// Base はオペレーターがアクセス可能なAirtableベースを表す。
type Base struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PermissionLevel string `json:"permissionLevel,omitempty"`
}

// MarshalProfile はProfileをDB保存用のJSONバイト列に変換する。
func (a *Account) MarshalProfile() ([]byte, error) {
	return json.Marshal(a.Profile)
}

// UnmarshalProfile はDBから読み出したJSONバイト列をProfileに復元する。
func (a *Account) UnmarshalProfile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &a.Profile)
}
