// Package model はドメインモデルを定義する。
package model

import "time"

// 認証プロバイダー種別。
const (
	ProviderLocal  = "local"
	ProviderGitHub = "github"
)

// SessionIdentity はセッションストアに永続化する最小限の識別子。
// (Provider, OwnerToken)のタプルがリクエストをまたいで保持される唯一の識別キー。
// OwnerTokenはlocalの場合はアカウントIDの文字列表現、githubの場合は
// プロバイダーが割り当てたsubject IDを保持する。
type SessionIdentity struct {
	Provider   string
	OwnerToken string
}

// Principal は現在のリクエストに対して解決済みの認証ユーザーを表す。
// ローカルアカウントとOAuthアカウントの2バリアントを統一的に扱うための
// 能力インターフェース。
type Principal interface {
	// OwnerKey はレコードの所有者スコープに使う不透明な文字列を返す。
	OwnerKey() string
	// DisplayName は画面表示用の名前を返す。
	DisplayName() string
	// Provider は認証プロバイダー種別を返す。
	Provider() string
}

// LocalPrincipal はユーザー名・パスワードで認証されたローカルアカウント。
type LocalPrincipal struct {
	ID       string
	Username string
}

// OwnerKey はローカルアカウントのowner-keyを返す。
// 元仕様のとおり不変のアカウントIDではなく可変のユーザー名を使用する。
func (p *LocalPrincipal) OwnerKey() string { return p.Username }

// DisplayName はユーザー名を返す。
func (p *LocalPrincipal) DisplayName() string { return p.Username }

// Provider は"local"を返す。
func (p *LocalPrincipal) Provider() string { return ProviderLocal }

// OAuthPrincipal は外部IdPで認証されたアカウント。
// RawProfileにはプロバイダーから取得した属性をそのまま保持する。
// セッションストアには保存されず、プロファイルキャッシュ経由で再解決される。
type OAuthPrincipal struct {
	ProviderUserID string
	Name           string
	Login          string
	ProviderLabel  string
	RawProfile     map[string]any
}

// OwnerKey はプロバイダーのsubject IDを返す。
func (p *OAuthPrincipal) OwnerKey() string { return p.ProviderUserID }

// DisplayName は表示名を返す。プロバイダーが表示名を持たない場合はloginを返す。
func (p *OAuthPrincipal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Login
}

// Provider はプロバイダーラベル（"github"等）を返す。
func (p *OAuthPrincipal) Provider() string { return p.ProviderLabel }

// compile-time interface checks
var _ Principal = (*LocalPrincipal)(nil)
var _ Principal = (*OAuthPrincipal)(nil)

// Normalize はPrincipalをセッション保存用のSessionIdentityに変換する。
// プロファイル属性はセッションには載せず、識別キーのみを残す。
func Normalize(p Principal) SessionIdentity {
	switch v := p.(type) {
	case *LocalPrincipal:
		return SessionIdentity{Provider: ProviderLocal, OwnerToken: v.ID}
	case *OAuthPrincipal:
		return SessionIdentity{Provider: v.ProviderLabel, OwnerToken: v.ProviderUserID}
	default:
		return SessionIdentity{}
	}
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	Identity  SessionIdentity
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Account はローカル認証用のアカウントを表す。
// Secretは平文で保持される（検証契約のみ継承。保存形式の強化は本設計の対象外）。
type Account struct {
	ID        string
	Username  string
	Secret    string
	CreatedAt time.Time
}
