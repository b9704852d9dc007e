// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/healthlog/internal/model"
)

// AccountRepository はローカルアカウントの永続化インターフェース。
type AccountRepository interface {
	// FindByUsername は指定ユーザー名のアカウントを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	// アカウント削除後のセッション解決ではnilが返る。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// Create はアカウントを作成する。ユーザー名の一意制約違反はエラーになる。
	Create(ctx context.Context, account *model.Account) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// セッションにはSessionIdentity（プロバイダー種別とowner token）のみを保存する。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// RecordRepository は測定レコードの永続化インターフェース。
// すべての参照・更新・削除は(id, ownerKey)の組で絞り込み、
// 他人のレコードと存在しないレコードを区別しない。
type RecordRepository interface {
	// ListByOwner は指定owner-keyのレコード一覧を作成日時昇順で返す。
	ListByOwner(ctx context.Context, ownerKey string) ([]*model.MetricRecord, error)

	// Create はレコードを作成する。
	Create(ctx context.Context, record *model.MetricRecord) error

	// FindByIDAndOwner は(id, ownerKey)でレコードを取得する。
	// 存在しない場合・所有者が異なる場合はいずれもnilを返す。
	FindByIDAndOwner(ctx context.Context, id, ownerKey string) (*model.MetricRecord, error)

	// Update は(id, ownerKey)で絞り込んでレコードを上書きする。
	// 更新対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, record *model.MetricRecord) (bool, error)

	// DeleteByIDAndOwner は(id, ownerKey)でレコードを削除する。
	// 削除対象が存在しない場合はfalseを返す。
	DeleteByIDAndOwner(ctx context.Context, id, ownerKey string) (bool, error)
}
