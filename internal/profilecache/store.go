// Package profilecache はOAuthプロファイルの揮発性キャッシュを提供する。
// OAuth認証に成功するたびにプロファイルを上書き保存し（last-write-wins）、
// 以降のリクエストでのPrincipal再解決に使用する。プロセス再起動で全エントリが
// 失われ、該当セッションは再ログインを強制される。これは意図した挙動。
package profilecache

import (
	"sync"
	"time"

	"github.com/hitoshi/healthlog/internal/model"
)

// Store はOAuthプロファイルキャッシュのインターフェース。
// 実装の差し替え（分散キャッシュ等）を可能にするため、リゾルバには
// このインターフェースを注入する。
type Store interface {
	// Get はsubject IDに対応するプロファイルを返す。未登録または期限切れの場合はnil。
	Get(subjectID string) *model.OAuthPrincipal
	// Set はプロファイルを保存する。既存エントリは上書きされる。
	Set(subjectID string, p *model.OAuthPrincipal)
	// Delete はエントリを削除する。ログアウト時の明示的な無効化に使用する。
	Delete(subjectID string)
}

// entry はキャッシュエントリと有効期限を保持する。
type entry struct {
	principal *model.OAuthPrincipal
	expiresAt time.Time
}

// MemoryStore はプロセス内メモリ上のTTL付きキャッシュ実装。
// エントリのTTLはセッション有効期間に合わせることで、セッションより先に
// プロファイルが消えないようにしつつ、無制限な成長を防ぐ。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	stopCh  chan struct{}
}

// NewMemoryStore はMemoryStoreを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]entry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go s.cleanupLoop(cleanupInterval)

	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryStore) Stop() {
	close(s.stopCh)
}

// Get はsubject IDに対応するプロファイルを返す。未登録または期限切れの場合はnil。
func (s *MemoryStore) Get(subjectID string) *model.OAuthPrincipal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[subjectID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil
	}
	return e.principal
}

// Set はプロファイルを保存する。既存エントリは上書きされ、期限もリセットされる。
func (s *MemoryStore) Set(subjectID string, p *model.OAuthPrincipal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[subjectID] = entry{
		principal: p,
		expiresAt: time.Now().Add(s.ttl),
	}
}

// Delete はエントリを削除する。存在しない場合は何もしない。
func (s *MemoryStore) Delete(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, subjectID)
}

// Len は現在のエントリ数を返す。テストおよびメトリクス用。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// cleanupLoop は定期的に期限切れエントリを削除する。
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

// removeExpired は期限切れエントリをまとめて削除する。
func (s *MemoryStore) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
