// internal/services/split.go
package services

import (
	"github.com/shopspring/decimal"
)

// Fixed PPV revenue ratios. They sum to one.
var (
	PlatformRatio     = decimal.RequireFromString("0.20")
	AskerRatio        = decimal.RequireFromString("0.40")
	BestAnswerRatio   = decimal.RequireFromString("0.24")
	OtherAnswersRatio = decimal.RequireFromString("0.16")
)

// Shares is one purchase amount split into its four destinations, in minor units.
type Shares struct {
	Total        int64 `json:"total"`
	Platform     int64 `json:"platform"`
	Asker        int64 `json:"asker"`
	BestAnswer   int64 `json:"best_answer"`
	OtherAnswers int64 `json:"other_answers"`
}

// Held is the part of the purchase that waits for settlement.
func (s Shares) Held() int64 {
	return s.BestAnswer + s.OtherAnswers
}

// SplitAmount floors every non-platform share and hands the rounding remainder
// to the platform, so the four shares always add up to total.
func SplitAmount(total int64) Shares {
	amount := decimal.NewFromInt(total)
	share := func(ratio decimal.Decimal) int64 {
		return amount.Mul(ratio).Floor().IntPart()
	}

	s := Shares{
		Total:        total,
		Asker:        share(AskerRatio),
		BestAnswer:   share(BestAnswerRatio),
		OtherAnswers: share(OtherAnswersRatio),
	}
	s.Platform = total - s.Asker - s.BestAnswer - s.OtherAnswers
	return s
}
