package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/presence"
)

const (
	// questionPoolSize questions are fetched by interest relevance, then the
	// session keeps the first questionsPerSession of them.
	questionPoolSize    = 5
	questionsPerSession = 4

	defaultQuestionInterval = 30 * time.Second
)

// Events emitted into the session room.
const (
	EventGameInit     = "game:init"
	EventQuestionSend = "question:send"
	EventGameEnd      = "game:end"
)

type SessionRepo interface {
	Create(ctx context.Context, ss *domain.QuizSession) error
	FindByID(ctx context.Context, sessionID string) (*domain.QuizSession, error)
	IncrementScore(ctx context.Context, sessionID, userID string) error
	Complete(ctx context.Context, sessionID, winnerID string) error
}

type QuestionRepo interface {
	FindByID(ctx context.Context, questionID string) (*domain.Question, error)
	FindByInterests(ctx context.Context, interests []string, limit int) ([]domain.Question, error)
}

// Broadcaster is the narrow fan-out capability the orchestrator needs; the
// websocket hub implements it. Keeping it abstract here breaks the cycle
// between the orchestrator and the channel that feeds answers back in.
type Broadcaster interface {
	JoinRoom(room, userID string)
	CloseRoom(room string)
	Emit(eventName string, payload any, room string) error
}

type Config struct {
	Sessions  SessionRepo
	Questions QuestionRepo
	Presence  *presence.Registry
	Broadcast Broadcaster
	EventBus  *event.Bus

	// QuestionInterval overrides the wall-clock pause between questions.
	QuestionInterval time.Duration
}

// Service owns a quiz session from creation to completion: it claims
// participants as occupied, drives the timed question loop, applies submitted
// answers, and releases everyone at the end.
type Service struct {
	sessions  SessionRepo
	questions QuestionRepo
	presence  *presence.Registry
	broadcast Broadcaster
	eb        *event.Bus
	interval  time.Duration
}

func NewService(c Config) *Service {
	if c.QuestionInterval <= 0 {
		c.QuestionInterval = defaultQuestionInterval
	}

	return &Service{
		sessions:  c.Sessions,
		questions: c.Questions,
		presence:  c.Presence,
		broadcast: c.Broadcast,
		eb:        c.EventBus,
		interval:  c.QuestionInterval,
	}
}

type (
	GameInitPayload struct {
		QuizID   string                  `json:"quizId"`
		Question domain.RedactedQuestion `json:"question"`
	}

	QuestionSendPayload struct {
		Question domain.RedactedQuestion `json:"question"`
		Scores   []domain.Score          `json:"scores"`
	}

	GameEndPayload struct {
		Scores []domain.Score `json:"scores"`
		Winner *string        `json:"winner"`
	}
)

type StartGameRequest struct {
	RequesterID string
	Opponent    domain.User
}

// StartGame claims both participants as occupied, persists a fresh session
// with questions picked by relevance to the opponent's interests, announces
// game:init to the session room and hands the session to its own timed loop.
// If anything after the occupation fails, both participants are released
// before the error is returned.
func (s *Service) StartGame(ctx context.Context, req StartGameRequest) (*domain.QuizSession, error) {
	participants := []string{req.RequesterID, req.Opponent.UserID}

	now := time.Now()
	for _, p := range participants {
		if err := s.presence.Add(ctx, presence.SetOccupied, p, now); err != nil {
			s.release(ctx, participants)
			return nil, fmt.Errorf("quiz: occupy participants: %w", err)
		}
	}

	ss, err := s.createSession(ctx, participants, req.Opponent.Interests)
	if err != nil {
		s.release(ctx, participants)
		return nil, err
	}

	room := roomName(ss.SessionID)
	for _, p := range participants {
		s.broadcast.JoinRoom(room, p)
	}

	if len(ss.QuestionIDs) > 0 {
		first, err := s.questions.FindByID(ctx, ss.QuestionIDs[0])
		if err != nil {
			s.broadcast.CloseRoom(room)
			s.release(ctx, participants)
			return nil, fmt.Errorf("quiz: load first question: %w", err)
		}

		if err := s.broadcast.Emit(EventGameInit, GameInitPayload{
			QuizID:   ss.SessionID,
			Question: first.Redacted(),
		}, room); err != nil {
			s.broadcast.CloseRoom(room)
			s.release(ctx, participants)
			return nil, fmt.Errorf("quiz: emit %s: %w", EventGameInit, err)
		}
	}

	s.eb.Publish(ctx, domain.EventGameStarted{Session: *ss})

	go s.run(*ss)

	return ss, nil
}

func (s *Service) createSession(ctx context.Context, participants []string, interests []string) (*domain.QuizSession, error) {
	questions, err := s.questions.FindByInterests(ctx, interests, questionPoolSize)
	if err != nil {
		return nil, fmt.Errorf("quiz: select questions: %w", err)
	}
	if len(questions) > questionsPerSession {
		questions = questions[:questionsPerSession]
	}

	ss := &domain.QuizSession{
		Participants: participants,
		Status:       domain.SessionOngoing,
	}
	for _, q := range questions {
		ss.QuestionIDs = append(ss.QuestionIDs, q.QuestionID)
	}
	for _, p := range participants {
		ss.Scores = append(ss.Scores, domain.Score{UserID: p, Score: 0})
	}

	if err := s.sessions.Create(ctx, ss); err != nil {
		return nil, fmt.Errorf("quiz: create session: %w", err)
	}

	return ss, nil
}

// run is the per-session timed loop. Each step re-reads the persisted session
// so score mutations applied by concurrent submissions are picked up; a
// submission landing after the re-read shows up in the next broadcast instead
// of the current one. That up-to-one-interval staleness is the intended
// contract, not an oversight. The loop has no cancel path: it ends after the
// last question or on the first unrecovered error, and releases both
// participants and retires the session room either way.
func (s *Service) run(ss domain.QuizSession) {
	ctx := context.Background()
	room := roomName(ss.SessionID)

	defer s.release(ctx, ss.Participants)
	defer s.broadcast.CloseRoom(room)

	for i := range ss.QuestionIDs {
		cur, err := s.sessions.FindByID(ctx, ss.SessionID)
		if err != nil {
			s.abort(ctx, ss.SessionID, fmt.Errorf("reload session: %w", err))
			return
		}

		q, err := s.questions.FindByID(ctx, cur.QuestionIDs[i])
		if err != nil {
			s.abort(ctx, ss.SessionID, fmt.Errorf("load question %d: %w", i, err))
			return
		}

		if err := s.broadcast.Emit(EventQuestionSend, QuestionSendPayload{
			Question: q.Redacted(),
			Scores:   cur.Scores,
		}, room); err != nil {
			s.abort(ctx, ss.SessionID, fmt.Errorf("emit %s: %w", EventQuestionSend, err))
			return
		}

		time.Sleep(s.interval)
	}

	final, err := s.sessions.FindByID(ctx, ss.SessionID)
	if err != nil {
		s.abort(ctx, ss.SessionID, fmt.Errorf("reload session for results: %w", err))
		return
	}

	winnerID := winnerOf(final.Scores)

	var winner *string
	if winnerID != "" {
		winner = &winnerID
	}
	if err := s.broadcast.Emit(EventGameEnd, GameEndPayload{
		Scores: final.Scores,
		Winner: winner,
	}, room); err != nil {
		s.abort(ctx, ss.SessionID, fmt.Errorf("emit %s: %w", EventGameEnd, err))
		return
	}

	if err := s.sessions.Complete(ctx, final.SessionID, winnerID); err != nil {
		s.abort(ctx, ss.SessionID, fmt.Errorf("complete session: %w", err))
		return
	}

	final.Status = domain.SessionCompleted
	final.WinnerID = winnerID
	s.eb.Publish(ctx, domain.EventGameEnded{Session: *final})

	slog.InfoContext(ctx, "quiz: session finished",
		"session", ss.SessionID,
		"winner", winnerID,
	)
}

type SubmitAnswerRequest struct {
	SessionID  string
	UserID     string
	QuestionID string
	ChoiceID   string
}

// SubmitAnswer applies one answer to the session's score state. A missing
// session or question is a benign miss and is ignored; a wrong choice changes
// nothing; a correct choice increments the submitter's score by exactly one.
// Every correct evaluation increments; there is no submit-once guard.
// A submitter that is not among the session's participants is a consistency
// fault and surfaces as an error.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error {
	ss, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		if errors.Convert(err).Code == errors.CodeNotFound {
			return nil
		}
		return err
	}

	q, err := s.questions.FindByID(ctx, req.QuestionID)
	if err != nil {
		if errors.Convert(err).Code == errors.CodeNotFound {
			return nil
		}
		return err
	}

	if q.CorrectChoiceID != req.ChoiceID {
		s.eb.Publish(ctx, domain.EventQuizAnswered{
			SessionID: ss.SessionID,
			UserID:    req.UserID,
			Correct:   false,
		})
		return nil
	}

	if err := s.sessions.IncrementScore(ctx, ss.SessionID, req.UserID); err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventQuizAnswered{
		SessionID: ss.SessionID,
		UserID:    req.UserID,
		Correct:   true,
	})

	return nil
}

func (s *Service) abort(ctx context.Context, sessionID string, err error) {
	// No compensating rollback: the session stays at whatever was last
	// persisted. The deferred release keeps participants from staying
	// occupied.
	slog.ErrorContext(ctx, "quiz: session loop aborted",
		"session", sessionID,
		"error", err,
	)
}

func (s *Service) release(ctx context.Context, participants []string) {
	if err := s.presence.Remove(ctx, presence.SetOccupied, participants...); err != nil {
		slog.ErrorContext(ctx, "quiz: release participants failed",
			"participants", participants,
			"error", err,
		)
	}
}

// winnerOf returns the participant with the strictly highest score, or ""
// when the top score is shared or nobody scored.
func winnerOf(scores []domain.Score) string {
	winner := ""
	best := 0
	for _, sc := range scores {
		switch {
		case sc.Score > best:
			winner, best = sc.UserID, sc.Score
		case sc.Score == best:
			winner = ""
		}
	}

	return winner
}

func roomName(sessionID string) string {
	return "quiz:" + sessionID
}
