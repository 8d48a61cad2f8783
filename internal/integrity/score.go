package integrity

import "github.com/stemsi/interview-coach/internal/model"

const (
	warningPenalty   = 10
	absencePenaltyMs = 5000

	highIntegrityMin   = 85
	mediumIntegrityMin = 60
)

// Score maps the totals to 0..100: ten points per warning and one point per
// full five seconds of absence.
func Score(warningCount int, totalAbsenceMs int64) int {
	if warningCount < 0 {
		warningCount = 0
	}
	if totalAbsenceMs < 0 {
		totalAbsenceMs = 0
	}

	score := int64(100) - int64(warningCount)*warningPenalty - totalAbsenceMs/absencePenaltyMs
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return int(score)
}

// VerdictFor buckets a score into the three integrity tiers.
func VerdictFor(score int) model.Verdict {
	switch {
	case score >= highIntegrityMin:
		return model.VerdictHigh
	case score >= mediumIntegrityMin:
		return model.VerdictMedium
	default:
		return model.VerdictLow
	}
}

// Evaluate scores a Totals value.
func Evaluate(t Totals) (int, model.Verdict) {
	s := Score(t.WarningCount, t.TotalAbsenceDurationMs)
	return s, VerdictFor(s)
}
