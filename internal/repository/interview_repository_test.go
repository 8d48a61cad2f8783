package repository

import (
	"math"
	"testing"

	"github.com/stemsi/interview-coach/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampPage(t *testing.T) {
	tests := []struct {
		name              string
		page, perPage     int
		wantPage, wantPer int
	}{
		{"defaults", 0, 0, 1, 20},
		{"kept", 3, 50, 3, 50},
		{"per page too large", 1, 500, 1, 20},
		{"huge page", math.MaxInt, 100, maxPage, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, perPage := clampPage(tt.page, tt.perPage)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantPer, perPage)
		})
	}
}

func TestPageOffset(t *testing.T) {
	assert.Zero(t, pageOffset(1, 20))
	assert.Equal(t, uint64(40), pageOffset(3, 20))

	page, perPage := clampPage(math.MaxInt, 100)
	assert.Equal(t, uint64(maxPage-1)*100, pageOffset(page, perPage))
}

func TestScoreGroupsQuery(t *testing.T) {
	sql, _, err := scoreGroups("s.profession").OrderBy("2 DESC", "s.profession").Limit(maxProfessionGroups).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "JOIN interview_integrity i ON i.session_id = s.id")
	assert.Contains(t, sql, "GROUP BY s.profession")
	assert.Contains(t, sql, "LIMIT 8")
}

func TestDeleteFinishedKeepsOpenSessions(t *testing.T) {
	sql, args, err := deleteFinishedQuery().ToSql()
	require.NoError(t, err)

	assert.Equal(t, "DELETE FROM interview_sessions WHERE status NOT IN ($1,$2) RETURNING id", sql)
	assert.Equal(t, []any{model.SessionStatusPending, model.SessionStatusInProgress}, args)
}
