// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/healthlog/internal/metrics"
	"github.com/hitoshi/healthlog/internal/middleware"
	"github.com/hitoshi/healthlog/internal/model"
	"github.com/hitoshi/healthlog/internal/record"
)

// RecordServiceInterface はレコードハンドラーが必要とするサービスインターフェース。
type RecordServiceInterface interface {
	List(ctx context.Context, ownerKey string) ([]*model.MetricRecord, error)
	Create(ctx context.Context, ownerKey string, in record.CreateInput) (*model.MetricRecord, error)
	Update(ctx context.Context, ownerKey, id string, in record.UpdateInput) (*model.MetricRecord, error)
	Delete(ctx context.Context, ownerKey, id string) error
}

// RecordHandler は測定レコードのHTTPハンドラー。
// すべての操作はセッションミドルウェアが注入したPrincipalのowner-keyでスコープされる。
type RecordHandler struct {
	service RecordServiceInterface
	metrics metrics.MetricsCollector
}

// NewRecordHandler はRecordHandlerを生成する。
func NewRecordHandler(service RecordServiceInterface, collector metrics.MetricsCollector) *RecordHandler {
	return &RecordHandler{
		service: service,
		metrics: collector,
	}
}

// createRecordRequest はレコード作成リクエストのボディ。
type createRecordRequest struct {
	Name       string   `json:"name"`
	Weight     *float64 `json:"weight"`
	WeightUnit string   `json:"weight_unit"`
	Height     *float64 `json:"height"`
	HeightUnit string   `json:"height_unit"`
}

// updateRecordRequest はレコード部分更新リクエストのボディ。
// 省略されたフィールドは保存済みの値を維持する。
type updateRecordRequest struct {
	Name       *string  `json:"name"`
	Weight     *float64 `json:"weight"`
	WeightUnit string   `json:"weight_unit"`
	Height     *float64 `json:"height"`
	HeightUnit string   `json:"height_unit"`
}

// jsonFloat はNaN/Infをnullとして直列化するfloat64。
// 身長0の入力ではBMIが+Infに導出されるため、標準のJSONエンコードでは
// レスポンスの書き込みに失敗する。数値として表現できない値はnullで返す。
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// recordResponse は測定レコードのAPIレスポンス。
type recordResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	WeightKg       float64   `json:"weight_kg"`
	HeightM        float64   `json:"height_m"`
	BMI            jsonFloat `json:"bmi"`
	Classification string    `json:"classification"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// recordListResult はレコード一覧のレスポンス。
type recordListResult struct {
	Records []recordResponse `json:"records"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListRecords は呼び出し元のレコード一覧を取得する。
// GET /records
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	records, err := h.service.List(r.Context(), principal.OwnerKey())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordMetricOperation("list")

	result := recordListResult{Records: make([]recordResponse, 0, len(records))}
	for _, rec := range records {
		result.Records = append(result.Records, toRecordResponse(rec))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// CreateRecord は測定レコードを作成する。
// POST /records
func (h *RecordHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if req.Weight == nil || req.Height == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("weight and height are required"))
		return
	}

	rec, err := h.service.Create(r.Context(), principal.OwnerKey(), record.CreateInput{
		Name:       req.Name,
		Weight:     *req.Weight,
		WeightUnit: req.WeightUnit,
		Height:     *req.Height,
		HeightUnit: req.HeightUnit,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordMetricOperation("create")
	h.metrics.RecordClassification(rec.Classification)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toRecordResponse(rec))
}

// UpdateRecord は測定レコードを部分更新する。
// PUT /records/:id
func (h *RecordHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	recordID := chi.URLParam(r, "id")

	var req updateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	rec, err := h.service.Update(r.Context(), principal.OwnerKey(), recordID, record.UpdateInput{
		Name:       req.Name,
		Weight:     req.Weight,
		WeightUnit: req.WeightUnit,
		Height:     req.Height,
		HeightUnit: req.HeightUnit,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordMetricOperation("update")
	h.metrics.RecordClassification(rec.Classification)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toRecordResponse(rec))
}

// DeleteRecord は測定レコードを削除する。
// DELETE /records/:id
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	recordID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), principal.OwnerKey(), recordID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordMetricOperation("delete")

	w.WriteHeader(http.StatusNoContent)
}

// toRecordResponse はモデルをAPIレスポンスに変換する。
func toRecordResponse(rec *model.MetricRecord) recordResponse {
	return recordResponse{
		ID:             rec.ID,
		Name:           rec.Name,
		WeightKg:       rec.WeightKg,
		HeightM:        rec.HeightM,
		BMI:            jsonFloat(rec.BMI),
		Classification: rec.Classification,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnknownAccount, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeDuplicateUsername:
		return http.StatusConflict
	case model.ErrCodeRecordNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
