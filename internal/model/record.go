// Package model はドメインモデルを定義する。
package model

import "time"

// MetricRecord は体格測定レコードを表す。
// WeightKg・HeightMは保存前に2桁へ丸められた正規化済みの値。
// BMIとClassificationは書き込みのたびに導出される。
// OwnerKeyは作成者のowner-keyと常に一致しなければならない。
type MetricRecord struct {
	ID             string
	OwnerKey       string
	Name           string
	WeightKg       float64
	HeightM        float64
	BMI            float64
	Classification string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
