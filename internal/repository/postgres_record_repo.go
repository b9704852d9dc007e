package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/healthlog/internal/model"
)

// PostgresRecordRepo はPostgreSQLを使用した測定レコードリポジトリ。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

// ListByOwner は指定owner-keyのレコード一覧を作成日時昇順で返す。
func (r *PostgresRecordRepo) ListByOwner(ctx context.Context, ownerKey string) ([]*model.MetricRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_key, name, weight_kg, height_m, bmi, classification, created_at, updated_at
		 FROM records
		 WHERE owner_key = $1
		 ORDER BY created_at ASC`,
		ownerKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*model.MetricRecord
	for rows.Next() {
		rec := &model.MetricRecord{}
		if err := rows.Scan(&rec.ID, &rec.OwnerKey, &rec.Name, &rec.WeightKg, &rec.HeightM,
			&rec.BMI, &rec.Classification, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

// Create はレコードを作成する。
func (r *PostgresRecordRepo) Create(ctx context.Context, record *model.MetricRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO records (id, owner_key, name, weight_kg, height_m, bmi, classification, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.OwnerKey, record.Name, record.WeightKg, record.HeightM,
		record.BMI, record.Classification, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// FindByIDAndOwner は(id, ownerKey)でレコードを取得する。
// 存在しない場合・所有者が異なる場合はいずれもnilを返す。
func (r *PostgresRecordRepo) FindByIDAndOwner(ctx context.Context, id, ownerKey string) (*model.MetricRecord, error) {
	rec := &model.MetricRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_key, name, weight_kg, height_m, bmi, classification, created_at, updated_at
		 FROM records
		 WHERE id = $1 AND owner_key = $2`,
		id, ownerKey,
	).Scan(&rec.ID, &rec.OwnerKey, &rec.Name, &rec.WeightKg, &rec.HeightM,
		&rec.BMI, &rec.Classification, &rec.CreatedAt, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}

	return rec, nil
}

// Update は(id, ownerKey)で絞り込んでレコードを上書きする。
// 更新対象が存在しない場合はfalseを返す。
func (r *PostgresRecordRepo) Update(ctx context.Context, record *model.MetricRecord) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE records
		 SET name = $3, weight_kg = $4, height_m = $5, bmi = $6, classification = $7, updated_at = $8
		 WHERE id = $1 AND owner_key = $2`,
		record.ID, record.OwnerKey, record.Name, record.WeightKg, record.HeightM,
		record.BMI, record.Classification, record.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// DeleteByIDAndOwner は(id, ownerKey)でレコードを削除する。
// 削除対象が存在しない場合はfalseを返す。
func (r *PostgresRecordRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerKey string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE id = $1 AND owner_key = $2`,
		id, ownerKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// compile-time interface check
var _ RecordRepository = (*PostgresRecordRepo)(nil)
