// Package bmi は体格指数（BMI）の導出を提供する。
// 単位の正規化、2桁丸め、固定しきい値による分類を行う純粋関数のみで構成される。
package bmi

import "math"

// 入力で受け付ける単位。kg・mは正規化不要のためそのまま使用する。
const (
	UnitKg  = "kg"
	UnitLbs = "lbs"
	UnitM   = "m"
	UnitFt  = "ft"
)

// 単位換算係数。
const (
	lbsToKg = 0.453592
	ftToM   = 0.3048
)

// 分類名。しきい値は半開区間で判定する。
const (
	ClassUnderweight = "Underweight"
	ClassHealthy     = "Healthy Weight"
	ClassOverweight  = "Overweight"
	ClassObese       = "Obese"
)

// Input はBMI導出の入力。WeightUnit・HeightUnitが空の場合はkg・mとみなす。
type Input struct {
	Weight     float64
	WeightUnit string
	Height     float64
	HeightUnit string
}

// Result はBMI導出の結果。
// WeightKg・HeightMは保存用に2桁へ丸めた正規化済みの値。
// BMIは丸め前の換算値から計算したうえで2桁へ丸める。
type Result struct {
	WeightKg       float64
	HeightM        float64
	BMI            float64
	Classification string
}

// NormalizeWeight は体重をkgへ換算する。丸めは行わない。
func NormalizeWeight(value float64, unit string) float64 {
	if unit == UnitLbs {
		return value * lbsToKg
	}
	return value
}

// NormalizeHeight は身長をmへ換算する。丸めは行わない。
func NormalizeHeight(value float64, unit string) float64 {
	if unit == UnitFt {
		return value * ftToM
	}
	return value
}

// Derive は測定値からBMIと分類を導出する。
// 計算順序は 換算 → 丸め前の値でBMI計算 → 保存用に体重・身長を丸め、の順で固定。
// 身長0などによるNaN・Infは拒否せずそのまま伝播する。
func Derive(in Input) Result {
	weight := NormalizeWeight(in.Weight, in.WeightUnit)
	height := NormalizeHeight(in.Height, in.HeightUnit)

	b := Round2(weight / (height * height))

	return Result{
		WeightKg:       Round2(weight),
		HeightM:        Round2(height),
		BMI:            b,
		Classification: Classify(b),
	}
}

// Classify はBMI値を固定しきい値で分類する。
// 境界は半開区間: 18.5はHealthy Weight、25.0はOverweight、30.0はObese。
func Classify(bmi float64) string {
	switch {
	case bmi < 18.5:
		return ClassUnderweight
	case bmi < 25:
		return ClassHealthy
	case bmi < 30:
		return ClassOverweight
	default:
		return ClassObese
	}
}

// Round2 は小数第2位への丸めを行う。NaN・Infはそのまま返す。
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*100) / 100
}
