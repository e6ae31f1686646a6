package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/event"
)

var (
	gamesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quizduel_games_started_total",
		Help: "Number of quiz sessions started.",
	})
	gamesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quizduel_games_completed_total",
		Help: "Number of quiz sessions that ran to completion.",
	})
	answers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizduel_answers_total",
		Help: "Number of answers submitted, partitioned by correctness.",
	}, []string{"result"})
)

// ObserveGames feeds the game counters from the event bus.
func ObserveGames(b *event.Bus) {
	b.Subscribe(domain.EventNameGameStarted, func(ctx context.Context, e event.Event) error {
		gamesStarted.Inc()
		return nil
	})
	b.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		gamesCompleted.Inc()
		return nil
	})
	b.Subscribe(domain.EventNameQuizAnswered, func(ctx context.Context, e event.Event) error {
		answered, ok := e.(domain.EventQuizAnswered)
		if !ok {
			return nil
		}

		result := "incorrect"
		if answered.Correct {
			result = "correct"
		}
		answers.WithLabelValues(result).Inc()
		return nil
	})
}
