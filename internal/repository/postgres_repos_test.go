package repository

import (
	"testing"
)

// PostgresAccountRepoはAccountRepositoryインターフェースを満たすことを検証
func TestPostgresAccountRepo_ImplementsInterface(t *testing.T) {
	var _ AccountRepository = (*PostgresAccountRepo)(nil)
}

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// PostgresRecordRepoはRecordRepositoryインターフェースを満たすことを検証
func TestPostgresRecordRepo_ImplementsInterface(t *testing.T) {
	var _ RecordRepository = (*PostgresRecordRepo)(nil)
}

// NewPostgresAccountRepoが正しく初期化されることを検証
func TestNewPostgresAccountRepo_Initializes(t *testing.T) {
	repo := NewPostgresAccountRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresSessionRepoが正しく初期化されることを検証
func TestNewPostgresSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresRecordRepoが正しく初期化されることを検証
func TestNewPostgresRecordRepo_Initializes(t *testing.T) {
	repo := NewPostgresRecordRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}
