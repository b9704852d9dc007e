package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// requestScopeContextKey はリクエストスコープのキャリアをコンテキストに格納するためのキー。
var requestScopeContextKey = contextKey("requestScope")

// requestScope は下流のミドルウェアからログ属性を受け取るためのキャリア。
// セッションミドルウェアはコンテキストを派生させてPrincipalを注入するため、
// 外側のLoggingミドルウェアからは見えない。代わりにポインタのキャリアを
// 先に注入しておき、解決済みowner-keyを書き戻してもらう。
type requestScope struct {
	ownerKey string
}

// setRequestOwnerKey はLoggingミドルウェアが注入したキャリアにowner-keyを書き込む。
// キャリアが存在しない場合（Loggingミドルウェアなしの構成）は何もしない。
func setRequestOwnerKey(ctx context.Context, ownerKey string) {
	if scope, ok := ctx.Value(requestScopeContextKey).(*requestScope); ok {
		scope.ownerKey = ownerKey
	}
}

// HTTPMetricsRecorder はリクエスト単位のメトリクス記録に必要なインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type HTTPMetricsRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、owner_key（認証済みの場合）を含む。
// recorderが指定された場合はステータスコード別のカウントとレイテンシも記録する。
func NewLoggingMiddleware(logger *slog.Logger, recorder HTTPMetricsRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			scope := &requestScope{}
			ctx := context.WithValue(r.Context(), requestScopeContextKey, scope)
			r = r.WithContext(ctx)

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}

			// セッションミドルウェアがキャリアへ書き戻したowner-keyを追加する。
			// キャリアが空でもコンテキストにPrincipalがあればそちらを使う。
			ownerKey := scope.ownerKey
			if ownerKey == "" {
				if principal, err := PrincipalFromContext(r.Context()); err == nil {
					ownerKey = principal.OwnerKey()
				}
			}
			if ownerKey != "" {
				attrs = append(attrs, slog.String("owner_key", ownerKey))
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			// slog.Attr をany スライスに変換
			args := make([]any, len(attrs))
			for i, attr := range attrs {
				args[i] = attr
			}

			logger.Log(r.Context(), level, "http_request", args...)

			if recorder != nil {
				recorder.RecordHTTPStatus(rec.statusCode)
				recorder.RecordRequestLatency(duration)
			}
		})
	}
}
