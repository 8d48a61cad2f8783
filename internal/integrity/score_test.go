package integrity_test

import (
	"encoding/json"
	"testing"

	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stemsi/interview-coach/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_Formula(t *testing.T) {
	tests := []struct {
		name     string
		warnings int
		absentMs int64
		want     int
		verdict  model.Verdict
	}{
		{"clean session", 0, 0, 100, model.VerdictHigh},
		{"two warnings twelve seconds", 2, 12000, 78, model.VerdictMedium},
		{"partial five second block is free", 0, 4999, 100, model.VerdictHigh},
		{"high boundary", 1, 25000, 85, model.VerdictHigh},
		{"just under high", 1, 30000, 84, model.VerdictMedium},
		{"medium boundary", 4, 0, 60, model.VerdictMedium},
		{"just under medium", 4, 5000, 59, model.VerdictLow},
		{"floor at zero", 20, 0, 0, model.VerdictLow},
		{"floor with long absence", 3, 10 * 60 * 1000, 0, model.VerdictLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := integrity.Score(tt.warnings, tt.absentMs)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.verdict, integrity.VerdictFor(got))
		})
	}
}

func TestRecorder_FinalizeClosesOpenEpisode(t *testing.T) {
	rec := integrity.NewRecorder(nil)

	require.True(t, rec.BeginAbsence(model.EventGazeAway, at(0)))
	rec.AddWarning()

	data := rec.Finalize(at(11))
	assert.Equal(t, int64(11000), data.TotalFaceAbsenceMs)
	assert.Equal(t, 1, data.WarningCount)
	assert.Equal(t, 100-10-2, data.Score)
	assert.Equal(t, model.VerdictHigh, data.Verdict)
	assert.Len(t, data.Events, 1, "force close does not log face_returned")

	_, open := rec.OpenEpisode()
	assert.False(t, open)
}

func TestRecorder_FinalizeLongEpisodeDropsToMedium(t *testing.T) {
	rec := integrity.NewRecorder(nil)

	require.True(t, rec.BeginAbsence(model.EventFaceLeft, at(0)))
	rec.AddWarning()

	data := rec.Finalize(at(30))
	assert.Equal(t, int64(30000), data.TotalFaceAbsenceMs)
	assert.Equal(t, 84, data.Score)
	assert.Equal(t, model.VerdictMedium, data.Verdict)
}

func TestRecorder_FinalizeIsSealed(t *testing.T) {
	rec := integrity.NewRecorder(nil)
	first := rec.Finalize(at(0))

	rec.AddWarning()
	assert.False(t, rec.BeginAbsence(model.EventFaceLeft, at(1)))
	second := rec.Finalize(at(2))

	assert.Same(t, first, second)
	assert.Equal(t, 0, second.WarningCount)
	assert.Equal(t, 100, second.Score)
}

func TestRecorder_CleanSessionIsHighIntegrity(t *testing.T) {
	rec := integrity.NewRecorder(nil)
	tr := integrity.NewPresenceTracker(2, rec)
	for i := 0; i < 300; i++ {
		tr.Observe(integrity.Present, at(float64(i)))
	}

	data := rec.Finalize(at(300))
	assert.Equal(t, 100, data.Score)
	assert.Equal(t, 0, data.WarningCount)
	assert.Equal(t, model.VerdictHigh, data.Verdict)
	assert.Empty(t, data.Events)
}

func TestIntegrityData_StorageContract(t *testing.T) {
	data := model.IntegrityData{
		Events:             []model.IntegrityEvent{{Timestamp: 1700000000000, Kind: model.EventFaceLeft}},
		WarningCount:       2,
		TotalFaceAbsenceMs: 12000,
		Score:              78,
		Verdict:            model.VerdictMedium,
	}

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"events": [{"timestamp": 1700000000000, "kind": "face_left"}],
		"warningCount": 2,
		"totalFaceAbsenceMs": 12000,
		"score": 78,
		"verdict": "Medium Integrity"
	}`, string(raw))
}
