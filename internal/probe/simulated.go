package probe

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/svcassure/core/internal/models"
)

// SimulatedExecutor substitutes a deterministic pseudo-random
// success-rate model for testing (spec §4.2, "Simulation mode").
// Latencies are drawn from a log-normal distribution so that the
// reported response times resemble real network behavior (a long
// right tail) rather than a uniform spread.
type SimulatedExecutor struct {
	SuccessRate   float64 // [0,1]
	MeanLatencyMs float64
	StdDevLogMs   float64 // sigma of the underlying normal, in log-space
	rng           *rand.Rand
}

// NewSimulatedExecutor builds a simulator seeded deterministically so
// repeated runs with the same seed reproduce the same sequence.
func NewSimulatedExecutor(successRate, meanLatencyMs float64, seed int64) *SimulatedExecutor {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &SimulatedExecutor{
		SuccessRate:   successRate,
		MeanLatencyMs: meanLatencyMs,
		StdDevLogMs:   0.3,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

func (s *SimulatedExecutor) Execute(ctx context.Context, _ models.ProbeType, _ string, _ map[string]string) Outcome {
	if ctx.Err() != nil {
		return timeoutOutcome()
	}

	success := s.rng.Float64() < s.SuccessRate
	latencyMs := s.logNormalLatency()

	if deadline, ok := ctx.Deadline(); ok {
		budgetMs := float64(time.Until(deadline).Milliseconds())
		if latencyMs > budgetMs {
			return timeoutOutcome()
		}
	}

	if !success {
		return errorOutcome("simulated probe failure")
	}

	ms := latencyMs
	return Outcome{
		Success:        true,
		ResponseTimeMs: &ms,
		Metrics:        map[string]float64{"simulated_latency_ms": ms},
	}
}

// logNormalLatency draws from a log-normal distribution parameterized
// so its median equals MeanLatencyMs.
func (s *SimulatedExecutor) logNormalLatency() float64 {
	mu := math.Log(math.Max(s.MeanLatencyMs, 0.001))
	z := s.rng.NormFloat64()
	return math.Exp(mu + s.StdDevLogMs*z)
}
