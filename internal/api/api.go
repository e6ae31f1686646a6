package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizduel/internal/auth"
	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/match"
	"github.com/victornm/quizduel/internal/quiz"
)

// Matcher is the admission-side capability of the matchmaker.
type Matcher interface {
	IsAvailable(ctx context.Context, userID string) (bool, error)
	FindMatch(ctx context.Context, req match.FindMatchRequest) (*domain.MatchCandidate, error)
}

// Game starts a quiz session between the requester and a matched opponent.
type Game interface {
	StartGame(ctx context.Context, req quiz.StartGameRequest) (*domain.QuizSession, error)
}

type Config struct {
	Engine *gin.Engine
	Auth   *auth.Verifier
	Match  Matcher
	Game   Game

	// WS serves the websocket handshake; mounted as-is under GET /ws.
	WS http.HandlerFunc
}

type API struct {
	auth  *auth.Verifier
	match Matcher
	game  Game
}

func New(c Config) *API {
	a := &API{
		auth:  c.Auth,
		match: c.Match,
		game:  c.Game,
	}

	c.Engine.POST("/v1/game/start", a.authenticate, a.startGame)
	c.Engine.GET("/ws", gin.WrapF(c.WS))

	return a
}

const ctxKeyUserID = "userID"

func (a *API) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		abortWithError(c, errors.New(errors.CodeUnauthenticated))
		return
	}

	claims, err := a.auth.Verify(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Set(ctxKeyUserID, claims.UserID)
	c.Next()
}

type StartGameResponse struct {
	Message       string `json:"message"`
	QuizSessionID string `json:"quizSessionId"`
}

// startGame is the single admission endpoint: it either rejects the requester
// with a specific reason (occupied, no opponent) or hands off to the
// orchestrator and returns the new session's ID.
func (a *API) startGame(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(ctxKeyUserID)

	available, err := a.match.IsAvailable(ctx, userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !available {
		abortWithError(c, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("user is already in a game")))
		return
	}

	candidate, err := a.match.FindMatch(ctx, match.FindMatchRequest{RequesterID: userID})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if candidate == nil {
		abortWithError(c, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no suitable opponent found")))
		return
	}

	ss, err := a.game.StartGame(ctx, quiz.StartGameRequest{
		RequesterID: userID,
		Opponent:    candidate.User,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartGameResponse{
		Message:       "game started",
		QuizSessionID: ss.SessionID,
	})
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
