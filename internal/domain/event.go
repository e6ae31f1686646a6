package domain

const (
	EventNameGameStarted  = "game.started"
	EventNameGameEnded    = "game.ended"
	EventNameQuizAnswered = "quiz.answered"
)

type EventGameStarted struct {
	Session QuizSession
}

func (EventGameStarted) Name() string { return EventNameGameStarted }

type EventGameEnded struct {
	Session QuizSession
}

func (EventGameEnded) Name() string { return EventNameGameEnded }

type EventQuizAnswered struct {
	SessionID string
	UserID    string
	Correct   bool
}

func (EventQuizAnswered) Name() string { return EventNameQuizAnswered }
