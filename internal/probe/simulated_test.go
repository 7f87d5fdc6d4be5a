package probe

import (
	"context"
	"testing"
	"time"

	"github.com/svcassure/core/internal/models"
)

func TestSimulatedExecutorFullSuccessRate(t *testing.T) {
	sim := NewSimulatedExecutor(1.0, 10, 42)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	successes := 0
	for i := 0; i < 50; i++ {
		out := sim.Execute(ctx, models.ProbeICMP, "192.0.2.1", nil)
		if out.Success {
			successes++
		}
	}
	if successes != 50 {
		t.Fatalf("expected all 50 simulated runs to succeed, got %d", successes)
	}
}

func TestSimulatedExecutorZeroSuccessRate(t *testing.T) {
	sim := NewSimulatedExecutor(0.0, 10, 7)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := sim.Execute(ctx, models.ProbeICMP, "192.0.2.1", nil)
	if out.Success {
		t.Fatalf("expected failure with zero success rate")
	}
	if out.ErrorMessage == "" {
		t.Fatalf("expected an error message on failure")
	}
}

func TestSimulatedExecutorRespectsContextDeadline(t *testing.T) {
	sim := NewSimulatedExecutor(1.0, 10, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	out := sim.Execute(ctx, models.ProbeICMP, "192.0.2.1", nil)
	if out.Success || out.ErrorMessage != "timeout" {
		t.Fatalf("expected timeout outcome, got %+v", out)
	}
}
