// Package record は測定レコードのユースケースを提供する。
// すべての操作は呼び出し元のPrincipalから導出されたowner-keyでスコープされる。
package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/healthlog/internal/bmi"
	"github.com/hitoshi/healthlog/internal/model"
	"github.com/hitoshi/healthlog/internal/repository"
)

// Service は測定レコードの操作を提供する。
type Service struct {
	records   repository.RecordRepository
	sanitizer *bluemonday.Policy
}

// NewService はServiceを生成する。
func NewService(records repository.RecordRepository) *Service {
	return &Service{
		records:   records,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// CreateInput はレコード作成の入力。
// WeightUnit・HeightUnitが空の場合はkg・mとみなす。
type CreateInput struct {
	Name       string
	Weight     float64
	WeightUnit string
	Height     float64
	HeightUnit string
}

// UpdateInput はレコード部分更新の入力。
// nilのフィールドは保存済みの値を維持する。
type UpdateInput struct {
	Name       *string
	Weight     *float64
	WeightUnit string
	Height     *float64
	HeightUnit string
}

// List は呼び出し元のowner-keyに属するレコード一覧を作成日時昇順で返す。
func (s *Service) List(ctx context.Context, ownerKey string) ([]*model.MetricRecord, error) {
	records, err := s.records.ListByOwner(ctx, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if records == nil {
		records = []*model.MetricRecord{}
	}
	return records, nil
}

// Create は測定値を正規化してレコードを作成する。
// BMIと分類は保存のたびに導出され、クライアントから受け取ることはない。
func (s *Service) Create(ctx context.Context, ownerKey string, in CreateInput) (*model.MetricRecord, error) {
	name, err := s.sanitizeName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := validateUnits(in.WeightUnit, in.HeightUnit); err != nil {
		return nil, err
	}

	derived := bmi.Derive(bmi.Input{
		Weight:     in.Weight,
		WeightUnit: in.WeightUnit,
		Height:     in.Height,
		HeightUnit: in.HeightUnit,
	})

	now := time.Now()
	rec := &model.MetricRecord{
		ID:             uuid.New().String(),
		OwnerKey:       ownerKey,
		Name:           name,
		WeightKg:       derived.WeightKg,
		HeightM:        derived.HeightM,
		BMI:            derived.BMI,
		Classification: derived.Classification,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	return rec, nil
}

// Update は(id, ownerKey)で絞り込んだレコードを部分更新する。
// 指定されなかった測定値は保存済みの正規化値を維持し、
// マージ後の値からBMIと分類を再導出する。
// 存在しないレコードと他人のレコードはいずれもRecordNotFoundになる。
func (s *Service) Update(ctx context.Context, ownerKey, id string, in UpdateInput) (*model.MetricRecord, error) {
	current, err := s.records.FindByIDAndOwner(ctx, id, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	if current == nil {
		return nil, model.NewRecordNotFoundError(id)
	}

	if in.Name != nil {
		name, err := s.sanitizeName(*in.Name)
		if err != nil {
			return nil, err
		}
		current.Name = name
	}

	// 新しい測定値は単位換算してから保存済みのkg・m値と合成する
	weightKg := current.WeightKg
	heightM := current.HeightM
	if in.Weight != nil {
		if err := validateUnits(in.WeightUnit, ""); err != nil {
			return nil, err
		}
		weightKg = bmi.NormalizeWeight(*in.Weight, in.WeightUnit)
	}
	if in.Height != nil {
		if err := validateUnits("", in.HeightUnit); err != nil {
			return nil, err
		}
		heightM = bmi.NormalizeHeight(*in.Height, in.HeightUnit)
	}

	derived := bmi.Derive(bmi.Input{Weight: weightKg, Height: heightM})
	current.WeightKg = derived.WeightKg
	current.HeightM = derived.HeightM
	current.BMI = derived.BMI
	current.Classification = derived.Classification
	current.UpdatedAt = time.Now()

	ok, err := s.records.Update(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	if !ok {
		// 検索と更新の間に削除された場合
		return nil, model.NewRecordNotFoundError(id)
	}

	return current, nil
}

// Delete は(id, ownerKey)で絞り込んだレコードを削除する。
func (s *Service) Delete(ctx context.Context, ownerKey, id string) error {
	ok, err := s.records.DeleteByIDAndOwner(ctx, id, ownerKey)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if !ok {
		return model.NewRecordNotFoundError(id)
	}
	return nil
}

// sanitizeName はレコード名からHTMLタグを除去し、空になった場合は拒否する。
func (s *Service) sanitizeName(name string) (string, error) {
	sanitized := strings.TrimSpace(s.sanitizer.Sanitize(name))
	if sanitized == "" {
		return "", model.NewInvalidRequestError("name is required")
	}
	return sanitized, nil
}

// validateUnits は受け付け可能な単位かどうかを検証する。空文字はkg・mとみなす。
func validateUnits(weightUnit, heightUnit string) error {
	switch weightUnit {
	case "", bmi.UnitKg, bmi.UnitLbs:
	default:
		return model.NewInvalidRequestError(fmt.Sprintf("unsupported weight unit: %s", weightUnit))
	}
	switch heightUnit {
	case "", bmi.UnitM, bmi.UnitFt:
	default:
		return model.NewInvalidRequestError(fmt.Sprintf("unsupported height unit: %s", heightUnit))
	}
	return nil
}
