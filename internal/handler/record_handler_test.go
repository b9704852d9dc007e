package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/healthlog/internal/metrics"
	"github.com/hitoshi/healthlog/internal/middleware"
	"github.com/hitoshi/healthlog/internal/model"
	"github.com/hitoshi/healthlog/internal/record"
)

// mockRecordService はRecordServiceInterfaceのモック実装。
type mockRecordService struct {
	listFunc   func(ctx context.Context, ownerKey string) ([]*model.MetricRecord, error)
	createFunc func(ctx context.Context, ownerKey string, in record.CreateInput) (*model.MetricRecord, error)
	updateFunc func(ctx context.Context, ownerKey, id string, in record.UpdateInput) (*model.MetricRecord, error)
	deleteFunc func(ctx context.Context, ownerKey, id string) error
}

func (m *mockRecordService) List(ctx context.Context, ownerKey string) ([]*model.MetricRecord, error) {
	return m.listFunc(ctx, ownerKey)
}

func (m *mockRecordService) Create(ctx context.Context, ownerKey string, in record.CreateInput) (*model.MetricRecord, error) {
	return m.createFunc(ctx, ownerKey, in)
}

func (m *mockRecordService) Update(ctx context.Context, ownerKey, id string, in record.UpdateInput) (*model.MetricRecord, error) {
	return m.updateFunc(ctx, ownerKey, id, in)
}

func (m *mockRecordService) Delete(ctx context.Context, ownerKey, id string) error {
	return m.deleteFunc(ctx, ownerKey, id)
}

// コンパイル時のインターフェース実装チェック
var _ RecordServiceInterface = (*mockRecordService)(nil)

func newTestCollector() *metrics.Collector {
	return metrics.NewCollector(prometheus.NewRegistry())
}

func requestWithPrincipal(req *http.Request, ownerKey string) *http.Request {
	principal := &model.LocalPrincipal{ID: "acct-" + ownerKey, Username: ownerKey}
	return req.WithContext(middleware.ContextWithPrincipal(req.Context(), principal))
}

func sampleRecord() *model.MetricRecord {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return &model.MetricRecord{
		ID:             "rec-1",
		OwnerKey:       "alice",
		Name:           "Morning checkup",
		WeightKg:       68.04,
		HeightM:        1.83,
		BMI:            20.34,
		Classification: "Healthy Weight",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TestListRecords_ReturnsOwnerRecords は呼び出し元のowner-keyでレコード一覧を返すことを検証する。
func TestListRecords_ReturnsOwnerRecords(t *testing.T) {
	service := &mockRecordService{
		listFunc: func(ctx context.Context, ownerKey string) ([]*model.MetricRecord, error) {
			if ownerKey != "alice" {
				t.Errorf("ownerKey = %q, want %q", ownerKey, "alice")
			}
			return []*model.MetricRecord{sampleRecord()}, nil
		},
	}
	h := NewRecordHandler(service, newTestCollector())

	req := requestWithPrincipal(httptest.NewRequest(http.MethodGet, "/records", nil), "alice")
	w := httptest.NewRecorder()
	h.ListRecords(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result recordListResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(result.Records))
	}
	if result.Records[0].BMI != 20.34 {
		t.Errorf("bmi = %v, want 20.34", result.Records[0].BMI)
	}
}

// TestListRecords_EmptyList はレコードが無い場合に空配列を返すことを検証する。
func TestListRecords_EmptyList(t *testing.T) {
	service := &mockRecordService{
		listFunc: func(ctx context.Context, ownerKey string) ([]*model.MetricRecord, error) {
			return []*model.MetricRecord{}, nil
		},
	}
	h := NewRecordHandler(service, newTestCollector())

	req := requestWithPrincipal(httptest.NewRequest(http.MethodGet, "/records", nil), "alice")
	w := httptest.NewRecorder()
	h.ListRecords(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	// nullではなく[]であること
	if !bytes.Contains(w.Body.Bytes(), []byte(`"records":[]`)) {
		t.Errorf("expected empty records array, got %s", w.Body.String())
	}
}

// TestListRecords_Unauthorized はPrincipal未設定のリクエストが401になることを検証する。
func TestListRecords_Unauthorized(t *testing.T) {
	service := &mockRecordService{
		listFunc: func(ctx context.Context, ownerKey string) ([]*model.MetricRecord, error) {
			t.Error("List should not be called")
			return nil, nil
		},
	}
	h := NewRecordHandler(service, newTestCollector())

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	w := httptest.NewRecorder()
	h.ListRecords(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestCreateRecord_Success はレコード作成が201と導出値を返すことを検証する。
func TestCreateRecord_Success(t *testing.T) {
	service := &mockRecordService{
		createFunc: func(ctx context.Context, ownerKey string, in record.CreateInput) (*model.MetricRecord, error) {
			if in.Weight != 150 || in.WeightUnit != "lbs" {
				t.Errorf("weight = %v %s, want 150 lbs", in.Weight, in.WeightUnit)
			}
			if in.Height != 6 || in.HeightUnit != "ft" {
				t.Errorf("height = %v %s, want 6 ft", in.Height, in.HeightUnit)
			}
			return sampleRecord(), nil
		},
	}
	h := NewRecordHandler(service, newTestCollector())

	body := `{"name":"Morning checkup","weight":150,"weight_unit":"lbs","height":6,"height_unit":"ft"}`
	req := requestWithPrincipal(httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(body)), "alice")
	w := httptest.NewRecorder()
	h.CreateRecord(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var resp recordResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.WeightKg != 68.04 {
		t.Errorf("weight_kg = %v, want 68.04", resp.WeightKg)
	}
	if resp.Classification != "Healthy Weight" {
		t.Errorf("classification = %q, want %q", resp.Classification, "Healthy Weight")
	}
}

// TestCreateRecord_MissingMeasurements は体重・身長欠落のリクエストが400になることを検証する。
func TestCreateRecord_MissingMeasurements(t *testing.T) {
	service := &mockRecordService{
		createFunc: func(ctx context.Context, ownerKey string, in record.CreateInput) (*model.MetricRecord, error) {
			t.Error("Create should not be called")
			return nil, nil
		},
	}
	h := NewRecordHandler(service, newTestCollector())

	body := `{"name":"checkup","weight":70}`
	req := requestWithPrincipal(httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(body)), "alice")
	w := httptest.NewRecorder()
	h.CreateRecord(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if resp.Code != model.ErrCodeInvalidRequest {
		t.Errorf("error code = %q, want %q", resp.Code, model.ErrCodeInvalidRequest)
	}
}

// TestCreateRecord_InvalidJSON は不正なJSONボディが400になることを検証する。
func TestCreateRecord_InvalidJSON(t *testing.T) {
	service := &mockRecordService{
		createFunc: func(ctx context.Context, ownerKey string, in record.CreateInput) (*model.MetricRecord, error) {
			t.Error("Create should not be called")
			return nil, nil
		},
	}
	h := NewRecordHandler(service, newTestCollector())

	req := requestWithPrincipal(httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString("{not json")), "alice")
	w := httptest.NewRecorder()
	h.CreateRecord(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func newRecordRouter(h *RecordHandler) chi.Router {
	r := chi.NewRouter()
	r.Put("/records/{id}", h.UpdateRecord)
	r.Delete("/records/{id}", h.DeleteRecord)
	return r
}

// TestUpdateRecord_Success は部分更新が200と再導出値を返すことを検証する。
func TestUpdateRecord_Success(t *testing.T) {
	service := &mockRecordService{
		updateFunc: func(ctx context.Context, ownerKey, id string, in record.UpdateInput) (*model.MetricRecord, error) {
			if id != "rec-1" {
				t.Errorf("id = %q, want %q", id, "rec-1")
			}
			if in.Weight == nil || *in.Weight != 90 {
				t.Errorf("weight = %v, want 90", in.Weight)
			}
			if in.Name != nil {
				t.Errorf("name should be nil for a weight-only update, got %v", *in.Name)
			}
			updated := sampleRecord()
			updated.WeightKg = 90
			updated.BMI = 26.87
			updated.Classification = "Overweight"
			return updated, nil
		},
	}
	h := NewRecordHandler(service, newTestCollector())
	router := newRecordRouter(h)

	body := `{"weight":90}`
	req := requestWithPrincipal(httptest.NewRequest(http.MethodPut, "/records/rec-1", bytes.NewBufferString(body)), "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp recordResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Classification != "Overweight" {
		t.Errorf("classification = %q, want %q", resp.Classification, "Overweight")
	}
}

// TestUpdateRecord_NotFound は他人のレコードと存在しないレコードが同一の404になることを検証する。
func TestUpdateRecord_NotFound(t *testing.T) {
	service := &mockRecordService{
		updateFunc: func(ctx context.Context, ownerKey, id string, in record.UpdateInput) (*model.MetricRecord, error) {
			return nil, model.NewRecordNotFoundError(id)
		},
	}
	h := NewRecordHandler(service, newTestCollector())
	router := newRecordRouter(h)

	req := requestWithPrincipal(httptest.NewRequest(http.MethodPut, "/records/other-owners", bytes.NewBufferString(`{"weight":90}`)), "mallory")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if resp.Code != model.ErrCodeRecordNotFound {
		t.Errorf("error code = %q, want %q", resp.Code, model.ErrCodeRecordNotFound)
	}
}

// TestDeleteRecord_Success は削除が204を返すことを検証する。
func TestDeleteRecord_Success(t *testing.T) {
	service := &mockRecordService{
		deleteFunc: func(ctx context.Context, ownerKey, id string) error {
			if ownerKey != "alice" || id != "rec-1" {
				t.Errorf("Delete(%q, %q), want (alice, rec-1)", ownerKey, id)
			}
			return nil
		},
	}
	h := NewRecordHandler(service, newTestCollector())
	router := newRecordRouter(h)

	req := requestWithPrincipal(httptest.NewRequest(http.MethodDelete, "/records/rec-1", nil), "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// TestDeleteRecord_NotFound は削除対象が無い場合に404を返すことを検証する。
func TestDeleteRecord_NotFound(t *testing.T) {
	service := &mockRecordService{
		deleteFunc: func(ctx context.Context, ownerKey, id string) error {
			return model.NewRecordNotFoundError(id)
		},
	}
	h := NewRecordHandler(service, newTestCollector())
	router := newRecordRouter(h)

	req := requestWithPrincipal(httptest.NewRequest(http.MethodDelete, "/records/missing", nil), "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// TestCreateRecord_InfiniteBMISerializesAsNull は身長0の導出で+InfになったBMIが
// レスポンスではnullとして直列化されることを検証する。
func TestCreateRecord_InfiniteBMISerializesAsNull(t *testing.T) {
	service := &mockRecordService{
		createFunc: func(ctx context.Context, ownerKey string, in record.CreateInput) (*model.MetricRecord, error) {
			rec := sampleRecord()
			rec.HeightM = 0
			rec.BMI = math.Inf(1)
			rec.Classification = "Obese"
			return rec, nil
		},
	}
	h := NewRecordHandler(service, newTestCollector())

	body := `{"name":"Zero height","weight":68,"weight_unit":"kg","height":0,"height_unit":"m"}`
	req := requestWithPrincipal(httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(body)), "alice")
	w := httptest.NewRecorder()
	h.CreateRecord(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"bmi":null`)) {
		t.Errorf("body = %s, want bmi serialized as null", w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if resp["bmi"] != nil {
		t.Errorf("bmi = %v, want null", resp["bmi"])
	}
}
