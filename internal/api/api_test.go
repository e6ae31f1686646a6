package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizduel/internal/auth"
	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/match"
	"github.com/victornm/quizduel/internal/quiz"
)

func TestAPI_StartGame(t *testing.T) {
	tests := map[string]struct {
		match *stubMatcher
		game  *stubGame

		wantStatus int
		wantBody   string
	}{
		"requester already occupied": {
			match:      &stubMatcher{available: false},
			game:       &stubGame{},
			wantStatus: http.StatusConflict,
			wantBody:   `{"code":9,"message":"user is already in a game"}`,
		},
		"no opponent found": {
			match:      &stubMatcher{available: true},
			game:       &stubGame{},
			wantStatus: http.StatusNotFound,
			wantBody:   `{"code":5,"message":"no suitable opponent found"}`,
		},
		"match succeeds": {
			match: &stubMatcher{
				available: true,
				candidate: &domain.MatchCandidate{User: domain.User{UserID: "u2"}},
			},
			game: &stubGame{
				session: &domain.QuizSession{SessionID: "s1"},
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"game started","quizSessionId":"s1"}`,
		},
		"orchestrator failure": {
			match: &stubMatcher{
				available: true,
				candidate: &domain.MatchCandidate{User: domain.User{UserID: "u2"}},
			},
			game: &stubGame{
				err: errors.New(errors.CodeInternal, errors.WithMessagef("boom")),
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"code":13,"message":"boom"}`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := makeFixture(t, tt.match, tt.game)

			rec := f.do(t, f.token("u1"))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestAPI_StartGame_Unauthenticated(t *testing.T) {
	m := &stubMatcher{available: true}
	f := makeFixture(t, m, &stubGame{})

	tests := map[string]string{
		"missing token": "",
		"garbage token": "Bearer not-a-jwt",
		"wrong scheme":  "Basic abc",
	}

	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, m.called, "matcher must not be reached without a verified identity")
		})
	}
}

func TestAPI_StartGame_IdentityFromToken(t *testing.T) {
	m := &stubMatcher{
		available: true,
		candidate: &domain.MatchCandidate{User: domain.User{UserID: "u2"}},
	}
	g := &stubGame{session: &domain.QuizSession{SessionID: "s1"}}
	f := makeFixture(t, m, g)

	rec := f.do(t, f.token("u7"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u7", m.gotRequesterID)
	assert.Equal(t, "u7", g.gotRequesterID)
	assert.Equal(t, "u2", g.gotOpponentID)
}

type fixture struct {
	engine *gin.Engine
	auth   *auth.Verifier
}

func makeFixture(t *testing.T, m Matcher, g Game) *fixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	f := &fixture{
		engine: gin.New(),
		auth:   auth.NewVerifier([]byte("test-secret")),
	}

	New(Config{
		Engine: f.engine,
		Auth:   f.auth,
		Match:  m,
		Game:   g,
		WS:     func(w http.ResponseWriter, r *http.Request) {},
	})

	return f
}

func (f *fixture) token(userID string) string {
	token, err := f.auth.Sign(auth.Claims{UserID: userID, FirstName: "Test"}, time.Minute)
	if err != nil {
		panic(err)
	}

	return "Bearer " + token
}

func (f *fixture) do(t *testing.T, authorization string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/game/start", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	return rec
}

type stubMatcher struct {
	available    bool
	availableErr error
	candidate    *domain.MatchCandidate
	findErr      error

	called         bool
	gotRequesterID string
}

func (m *stubMatcher) IsAvailable(_ context.Context, userID string) (bool, error) {
	m.called = true
	return m.available, m.availableErr
}

func (m *stubMatcher) FindMatch(_ context.Context, req match.FindMatchRequest) (*domain.MatchCandidate, error) {
	m.gotRequesterID = req.RequesterID
	return m.candidate, m.findErr
}

type stubGame struct {
	session *domain.QuizSession
	err     error

	gotRequesterID string
	gotOpponentID  string
}

func (g *stubGame) StartGame(_ context.Context, req quiz.StartGameRequest) (*domain.QuizSession, error) {
	g.gotRequesterID = req.RequesterID
	g.gotOpponentID = req.Opponent.UserID
	return g.session, g.err
}
