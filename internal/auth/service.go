// Package auth はローカル認証・OAuth認証フロー、セッション管理、
// およびSessionIdentityからPrincipalへの再解決を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/healthlog/internal/model"
	"github.com/hitoshi/healthlog/internal/profilecache"
	"github.com/hitoshi/healthlog/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Login          string
	Name           string
	Provider       string // "github" 等
	RawProfile     map[string]any
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 複数IdPに対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
// ローカル認証とOAuth認証の双方を単一のセッション発行経路に合流させる。
type Service struct {
	oauth       OAuthProvider
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	profiles    profilecache.Store
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	profiles profilecache.Store,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		profiles:    profiles,
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// LoginLocal はユーザー名・パスワードでローカル認証し、セッションを発行する。
// ユーザー名不明とパスワード不一致は同一のInvalidCredentialsとして返し、
// アカウントの存在有無を漏らさない。
func (s *Service) LoginLocal(ctx context.Context, username, password string) (*model.Session, error) {
	account, err := s.accountRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || account.Secret != password {
		return nil, model.NewInvalidCredentialsError()
	}

	principal := &model.LocalPrincipal{ID: account.ID, Username: account.Username}

	session, err := s.createSession(ctx, model.Normalize(principal))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("local user logged in",
		slog.String("account_id", account.ID),
	)

	return session, nil
}

// Register はローカルアカウントを新規作成し、そのままログインセッションを発行する。
// ユーザー名が登録済みの場合はDuplicateUsernameを返す。
func (s *Service) Register(ctx context.Context, username, password string) (*model.Session, error) {
	existing, err := s.accountRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateUsernameError(username)
	}

	account := &model.Account{
		ID:        uuid.New().String(),
		Username:  username,
		Secret:    password,
		CreatedAt: time.Now(),
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	principal := &model.LocalPrincipal{ID: account.ID, Username: account.Username}

	session, err := s.createSession(ctx, model.Normalize(principal))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("new local account created",
		slog.String("account_id", account.ID),
	)

	return session, nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 取得したプロファイルはプロファイルキャッシュへ上書き保存する（last-write-wins）。
// 永続ストレージには一切書き込まず、アカウントの存在管理はプロバイダーに委譲する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	principal := &model.OAuthPrincipal{
		ProviderUserID: userInfo.ProviderUserID,
		Name:           userInfo.Name,
		Login:          userInfo.Login,
		ProviderLabel:  userInfo.Provider,
		RawProfile:     userInfo.RawProfile,
	}

	s.profiles.Set(principal.ProviderUserID, principal)

	session, err := s.createSession(ctx, model.Normalize(principal))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("oauth user logged in",
		slog.String("provider", userInfo.Provider),
		slog.String("subject_id", userInfo.ProviderUserID),
	)

	return session, nil
}

// Logout はセッションを破棄する。
// OAuthセッションの場合はプロファイルキャッシュのエントリも明示的に無効化する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	if session != nil && session.Identity.Provider != model.ProviderLocal {
		s.profiles.Delete(session.Identity.OwnerToken)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// Resolve はSessionIdentityから完全なPrincipalを再構成する。
// localは永続ストレージをアカウントIDで参照し、githubはプロファイルキャッシュを参照する。
// どちらの経路でも見つからない場合はUnknownAccountを返す。OAuthのキャッシュミスは
// プロセス再起動後に必ず発生する通常の失敗であり、再ログインを強制する。
func (s *Service) Resolve(ctx context.Context, identity model.SessionIdentity) (model.Principal, error) {
	switch identity.Provider {
	case model.ProviderLocal:
		account, err := s.accountRepo.FindByID(ctx, identity.OwnerToken)
		if err != nil {
			return nil, fmt.Errorf("failed to find account: %w", err)
		}
		if account == nil {
			return nil, model.NewUnknownAccountError()
		}
		return &model.LocalPrincipal{ID: account.ID, Username: account.Username}, nil

	default:
		principal := s.profiles.Get(identity.OwnerToken)
		if principal == nil {
			return nil, model.NewUnknownAccountError()
		}
		return principal, nil
	}
}

// FindSession は指定IDの有効なセッションを取得する。期限切れ・不明はnilを返す。
func (s *Service) FindSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.sessionRepo.FindByID(ctx, sessionID)
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, identity model.SessionIdentity) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		Identity:  identity,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
