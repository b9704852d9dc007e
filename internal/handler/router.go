package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/healthlog/internal/metrics"
	"github.com/hitoshi/healthlog/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	PrincipalResolver middleware.PrincipalResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 測定レコード
	RecordService RecordServiceInterface

	// 観測
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer
	HealthChecker   HealthChecker

	// 画面（トップページ・ダッシュボード）
	Static http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging →
//	  （認証ルート: RateLimit(Login)）
//	  （保護ルート: Session → RateLimit(General)）
//
// トップページ・ヘルスチェック・メトリクスはミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)
	recordHandler := NewRecordHandler(deps.RecordService, deps.Metrics)

	// --- 認証不要のルート ---

	// ローカル認証（試行レート制限つき）
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.LoginLocal)
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/register", authHandler.Register)

	// GitHub OAuthフロー
	r.Get("/auth/github", authHandler.GitHubLogin)
	r.Get("/auth/github/callback", authHandler.GitHubCallback)

	// ログアウトはセッションの有無にかかわらず受け付ける
	r.Get("/logout", authHandler.Logout)

	// ヘルスチェック
	r.Get("/health", healthHandler(deps.HealthChecker))

	// Prometheusスクレイプ
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.PrincipalResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/user", authHandler.Me)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", recordHandler.ListRecords)
			r.Post("/", recordHandler.CreateRecord)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", recordHandler.UpdateRecord)
				r.Delete("/", recordHandler.DeleteRecord)
			})
		})

		// ダッシュボード画面もアクセスガードの内側に置く
		if deps.Static != nil {
			r.Get("/dashboard", deps.Static.ServeHTTP)
		}
	})

	// トップページと静的アセット
	if deps.Static != nil {
		r.Get("/", indexHandler(deps.SessionFinder, deps.PrincipalResolver, deps.Static))
		r.NotFound(deps.Static.ServeHTTP)
	}

	return r
}

// indexHandler はトップページを返すハンドラーを返す。
// 有効なセッションを持つ訪問者はダッシュボードへリダイレクトする。
// セッションの解決に失敗した場合はログイン画面をそのまま表示する。
func indexHandler(sessions middleware.SessionFinder, resolver middleware.PrincipalResolver, static http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
			if session, err := sessions.FindByID(r.Context(), cookie.Value); err == nil && session != nil {
				if principal, err := resolver.Resolve(r.Context(), session.Identity); err == nil && principal != nil {
					http.Redirect(w, r, "/dashboard", http.StatusFound)
					return
				}
			}
		}
		static.ServeHTTP(w, r)
	}
}

// healthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		statusCode := http.StatusOK

		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				status = "unavailable"
				statusCode = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
