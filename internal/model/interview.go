package model

import (
	"time"

	"github.com/google/uuid"
)

// InterviewType selects the question mix of a session.
type InterviewType string

const (
	InterviewTypeTechnical  InterviewType = "Technical"
	InterviewTypeBehavioral InterviewType = "Behavioral"
	InterviewTypeMixed      InterviewType = "Mixed"
)

// ExperienceLevel is the seniority the candidate is rehearsing for.
type ExperienceLevel string

const (
	LevelJunior ExperienceLevel = "Junior"
	LevelMid    ExperienceLevel = "Mid-Level"
	LevelSenior ExperienceLevel = "Senior"
	LevelLead   ExperienceLevel = "Lead"
)

// SessionStatus enumerates the lifecycle of an interview session.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "PENDING"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusTerminated SessionStatus = "TERMINATED"
	SessionStatusAbandoned  SessionStatus = "ABANDONED"
)

// EndReason records which exit path closed a session.
type EndReason string

const (
	EndReasonCompleted  EndReason = "completed"
	EndReasonTerminated EndReason = "terminated"
	EndReasonAbandoned  EndReason = "abandoned"
)

// Status maps an exit path onto the persisted session status.
func (r EndReason) Status() SessionStatus {
	switch r {
	case EndReasonCompleted:
		return SessionStatusCompleted
	case EndReasonTerminated:
		return SessionStatusTerminated
	default:
		return SessionStatusAbandoned
	}
}

// Question is one generated interview question.
type Question struct {
	ID       string `json:"id" binding:"required,max=64"`
	Text     string `json:"text" binding:"required,max=4000"`
	Category string `json:"category,omitempty" binding:"omitempty,max=64"`
}

// Answer is the candidate's response to a question.
type Answer struct {
	QuestionID string    `json:"questionId"`
	Text       string    `json:"text"`
	TimeTaken  int       `json:"timeTaken"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// InterviewSession represents one mock interview.
type InterviewSession struct {
	ID               uuid.UUID       `json:"id"`
	Profession       string          `json:"profession"`
	Level            ExperienceLevel `json:"level"`
	InterviewType    InterviewType   `json:"interview_type"`
	QuestionCount    int             `json:"question_count"`
	IncludeChallenge bool            `json:"include_challenge"`
	Questions        []Question      `json:"questions"`
	Answers          []Answer        `json:"answers,omitempty"`
	Status           SessionStatus   `json:"status"`
	EndReason        *EndReason      `json:"end_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
}

// InterviewSummary is a history row: the session plus its integrity verdict.
type InterviewSummary struct {
	ID             uuid.UUID       `json:"id"`
	Profession     string          `json:"profession"`
	Level          ExperienceLevel `json:"level"`
	InterviewType  InterviewType   `json:"interview_type"`
	QuestionCount  int             `json:"question_count"`
	Status         SessionStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	IntegrityScore *int            `json:"integrity_score,omitempty"`
	Verdict        *Verdict        `json:"verdict,omitempty"`
}

// CreateInterviewRequest is the payload for starting a new interview.
// Questions come from the external question generator.
type CreateInterviewRequest struct {
	Profession       string          `json:"profession" binding:"required,min=2,max=120"`
	Level            ExperienceLevel `json:"level" binding:"required,oneof=Junior Mid-Level Senior Lead"`
	InterviewType    InterviewType   `json:"interview_type" binding:"required,interview_type"`
	QuestionCount    int             `json:"question_count" binding:"required,oneof=3 5 10"`
	IncludeChallenge bool            `json:"include_challenge"`
	Questions        []Question      `json:"questions" binding:"required,min=1,max=10,dive"`
}

// InterviewFilter narrows the history listing.
type InterviewFilter struct {
	InterviewType *InterviewType
	Verdict       *Verdict
	Status        *SessionStatus
	Page          int
	PerPage       int
}

// InterviewStats aggregates the whole history for the analytics view.
// Scores are integrity scores of finished sessions.
type InterviewStats struct {
	TotalSessions      int64             `json:"total_sessions"`
	ScoredSessions     int64             `json:"scored_sessions"`
	AverageScore       int               `json:"average_score"`
	BestScore          int               `json:"best_score"`
	AverageTimeSeconds int               `json:"average_time_seconds"`
	ScoreByType        []GroupScore      `json:"score_by_type"`
	ScoreByProfession  []GroupScore      `json:"score_by_profession"`
	VerdictCounts      map[Verdict]int64 `json:"verdict_counts"`
	// Activity maps a UTC day ("2006-01-02") to the sessions started on it.
	Activity map[string]int64 `json:"activity"`
}

// GroupScore is the rounded average score of one group of sessions.
type GroupScore struct {
	Group string `json:"group"`
	Score int    `json:"score"`
	Count int64  `json:"count"`
}
