package domain

import (
	"time"
)

// User is an account managed elsewhere; this service only reads it.
type User struct {
	UserID     string
	FirstName  string
	Interests  []string
	CreateTime time.Time
	UpdateTime time.Time
}

type Question struct {
	QuestionID      string
	Text            string
	Type            string
	Choices         []Choice
	CorrectChoiceID string
	Tags            []string
	CreateTime      time.Time
}

type Choice struct {
	ChoiceID string `json:"choiceId"`
	Text     string `json:"text"`
}

// RedactedQuestion is the client-facing shape of a question, without the
// correct choice.
type RedactedQuestion struct {
	QuestionID string   `json:"questionId"`
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Choices    []Choice `json:"choices"`
}

// Redacted strips the correct choice before the question leaves the server.
func (q Question) Redacted() RedactedQuestion {
	return RedactedQuestion{
		QuestionID: q.QuestionID,
		Text:       q.Text,
		Type:       q.Type,
		Choices:    q.Choices,
	}
}

type SessionStatus string

const (
	SessionOngoing   SessionStatus = "ongoing"
	SessionCompleted SessionStatus = "completed"
)

// QuizSession is one two-participant timed quiz, from creation through
// completion. The orchestrator is the sole writer of scores and status once
// the session exists.
type QuizSession struct {
	SessionID    string
	Participants []string
	QuestionIDs  []string
	Scores       []Score
	Status       SessionStatus
	// WinnerID is empty while the session is ongoing and stays empty on a tie.
	WinnerID   string
	CreateTime time.Time
	UpdateTime time.Time
}

type Score struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
}

// MatchCandidate is the ranking tuple computed per candidate during
// matchmaking. It is derived state and never persisted.
type MatchCandidate struct {
	User User
	// MatchingInterests is the size of the interest intersection with the
	// requester.
	MatchingInterests int
	// RecentSessions counts sessions in the last 24 hours shared between the
	// candidate and the requester.
	RecentSessions int
}
