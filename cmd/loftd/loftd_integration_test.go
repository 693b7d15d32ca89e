// go:build integration
//go:build integration

package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/fairline/loft/internal/engine"
	"github.com/fairline/loft/internal/gateway"
	"github.com/fairline/loft/internal/piping"
	"github.com/fairline/loft/internal/registry"
	"github.com/fairline/loft/pkg/datum"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisURL := fmt.Sprintf("redis://%s:%s", host, port.Port())

	cleanup := func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}

	return redisURL, cleanup
}

// startStack wires the daemon's core (store client, gateway, engine,
// piping pack) against the given Redis and starts the run loop.
func startStack(ctx context.Context, t *testing.T, redisURL string) (*datum.Client, *gateway.Gateway, chan error) {
	t.Helper()

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}

	client, err := datum.NewClient(opts, "test-instance")
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	gw := gateway.New(client, gateway.Config{})

	eng := engine.New(client, registry.New(), engine.Config{
		Workers:        2,
		ReconcileEvery: 500 * time.Millisecond,
		Notifier:       gw,
		Logger:         zap.NewNop(),
	})
	if err := eng.LoadGraph(ctx); err != nil {
		t.Fatalf("Failed to load graph: %v", err)
	}

	if _, err := eng.SeedParameters(ctx, pipingSeeds()); err != nil {
		t.Fatalf("Failed to seed parameters: %v", err)
	}
	if err := piping.Register(ctx, eng); err != nil {
		t.Fatalf("Failed to register pack: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.Run(ctx)
	}()

	return client, gw, errCh
}

// pipingSeeds builds the full seed set the piping pack derives from.
func pipingSeeds() []*datum.Parameter {
	number := func(id string, v float64) *datum.Parameter {
		return &datum.Parameter{ID: id, Value: datum.NumberValue(v), Discipline: piping.Discipline, UpdatedBy: "seed"}
	}
	str := func(id, v string) *datum.Parameter {
		return &datum.Parameter{ID: id, Value: datum.StringValue(v), Discipline: piping.Discipline, UpdatedBy: "seed"}
	}

	loads := datum.MustRecordValue(map[string]any{
		"axialLb":     1200.0,
		"shearLb":     800.0,
		"bendingFtLb": 950.0,
		"torsionFtLb": 1400.0,
	})

	return []*datum.Parameter{
		number(piping.ParamDesignPressure, 285),
		number(piping.ParamDesignTemperature, 650),
		number(piping.ParamPipeOutsideDiameter, 6.625),
		number(piping.ParamWallThickness, 0.280),
		number(piping.ParamCorrosionAllowance, 0.0625),
		number(piping.ParamAllowableStress, 20000),
		{ID: piping.ParamNozzleLoads, Value: loads, Discipline: piping.Discipline, UpdatedBy: "seed"},
		str(piping.ParamAnalysisNumber, "N-0117"),
		str(piping.ParamAnalysisTitle, "Relief header stress analysis"),
		str(piping.ParamStationName, "Compressor Station 12"),
	}
}

// waitForArtifact polls until the artifact satisfies the predicate.
func waitForArtifact(ctx context.Context, t *testing.T, client *datum.Client, id string, pred func(*datum.Artifact) bool) *datum.Artifact {
	t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		a, err := client.GetArtifact(ctx, id)
		if err == nil && pred(a) {
			return a
		}
		if err != nil && !datum.IsNotFound(err) {
			t.Fatalf("Unexpected error fetching %s: %v", id, err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("Artifact %s did not reach the expected state within timeout", id)
	return nil
}

func commitParameter(ctx context.Context, t *testing.T, client *datum.Client, id string, base int64, v datum.Value) {
	t.Helper()

	_, err := client.CommitChange(ctx, &datum.ChangeRequest{
		ID:            uuid.New().String(),
		RequesterID:   "integration",
		BaseRevisions: map[string]int64{id: base},
		Writes:        map[string]datum.Value{id: v},
	})
	if err != nil {
		t.Fatalf("Failed to commit change: %v", err)
	}
}

// TestDaemon_ComputesChainOnStartup verifies the startup reconciliation
// sweep derives the whole artifact chain from the seeds.
func TestDaemon_ComputesChainOnStartup(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, _, errCh := startStack(ctx, t, redisURL)
	defer client.Close()

	chain := []string{
		piping.ArtifactPipeStressCalc,
		piping.ArtifactNozzleLoadCheck,
		piping.ArtifactIsoStressDrawing,
		piping.ArtifactStressSummaryReport,
		piping.ArtifactAnalysisCoversheet,
	}
	for _, id := range chain {
		a := waitForArtifact(ctx, t, client, id, func(a *datum.Artifact) bool {
			return a.Status == datum.ArtifactStatusCurrent && a.Revision == 1
		})
		if len(a.Provenance) == 0 {
			t.Errorf("Artifact %s committed without provenance", id)
		}
	}

	calc, err := client.GetArtifact(ctx, piping.ArtifactPipeStressCalc)
	if err != nil {
		t.Fatalf("Failed to fetch calculation: %v", err)
	}
	record, err := calc.Value.AsRecord()
	if err != nil {
		t.Fatalf("Calculation value is not a record: %v", err)
	}
	if within, ok := record["withinAllowable"].(bool); !ok || !within {
		t.Errorf("Expected the seed geometry to pass, got withinAllowable=%v", record["withinAllowable"])
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Engine returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Engine did not shut down within timeout")
	}
}

// TestDaemon_RecomputesOnCommit verifies a committed change request
// propagates through the chain and out to a gateway subscriber.
func TestDaemon_RecomputesOnCommit(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, gw, errCh := startStack(ctx, t, redisURL)
	defer client.Close()

	// Let the startup sweep finish before subscribing, so the events
	// received below all belong to the commit under test.
	waitForArtifact(ctx, t, client, piping.ArtifactAnalysisCoversheet, func(a *datum.Artifact) bool {
		return a.Status == datum.ArtifactStatusCurrent && a.Revision == 1
	})

	sub, err := gw.Subscribe("integration-client", nil)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	commitParameter(ctx, t, client, piping.ParamDesignPressure, 1, datum.NumberValue(400))

	calc := waitForArtifact(ctx, t, client, piping.ArtifactPipeStressCalc, func(a *datum.Artifact) bool {
		return a.Status == datum.ArtifactStatusCurrent && a.Revision == 2
	})
	if calc.Provenance[piping.ParamDesignPressure] != 2 {
		t.Errorf("Expected provenance to record designPressure revision 2, got %d",
			calc.Provenance[piping.ParamDesignPressure])
	}

	// The report reads the calculation, so the pass converges it in the
	// same sweep.
	waitForArtifact(ctx, t, client, piping.ArtifactStressSummaryReport, func(a *datum.Artifact) bool {
		return a.Status == datum.ArtifactStatusCurrent && a.Revision == 2
	})

	// The subscriber sees the recompute batch.
	sawCalc := false
	timeout := time.After(10 * time.Second)
	for !sawCalc {
		select {
		case event := <-sub.Events():
			if event.ArtifactID == piping.ArtifactPipeStressCalc && event.Revision == 2 {
				sawCalc = true
			}
		case <-timeout:
			t.Fatal("Subscriber did not receive the recompute event within timeout")
		}
	}

	cancel()
	<-errCh
}

// TestDaemon_FailureKeepsLastGoodValue verifies a failing derivation
// flags the artifact, blocks its dependents, and recovers on the next
// good commit.
func TestDaemon_FailureKeepsLastGoodValue(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	client, _, errCh := startStack(ctx, t, redisURL)
	defer client.Close()

	waitForArtifact(ctx, t, client, piping.ArtifactAnalysisCoversheet, func(a *datum.Artifact) bool {
		return a.Status == datum.ArtifactStatusCurrent && a.Revision == 1
	})

	// A wall thinner than the corrosion allowance fails the calculation.
	commitParameter(ctx, t, client, piping.ParamWallThickness, 1, datum.NumberValue(0.05))

	calc := waitForArtifact(ctx, t, client, piping.ArtifactPipeStressCalc, func(a *datum.Artifact) bool {
		return a.Status == datum.ArtifactStatusFailed
	})
	if calc.Revision != 1 {
		t.Errorf("Expected the failed calculation to keep revision 1, got %d", calc.Revision)
	}
	if calc.FailureReason == "" {
		t.Error("Expected a failure reason on the flagged calculation")
	}

	// The nozzle check has no bore problem at this wall and recomputes.
	waitForArtifact(ctx, t, client, piping.ArtifactNozzleLoadCheck, func(a *datum.Artifact) bool {
		return a.Status == datum.ArtifactStatusCurrent && a.Revision == 2
	})

	// Dependents of the failure stay stale rather than consuming a bad
	// value.
	waitForArtifact(ctx, t, client, piping.ArtifactStressSummaryReport, func(a *datum.Artifact) bool {
		return a.Status == datum.ArtifactStatusStale
	})

	// A sane wall heals the chain.
	commitParameter(ctx, t, client, piping.ParamWallThickness, 2, datum.NumberValue(0.322))

	waitForArtifact(ctx, t, client, piping.ArtifactAnalysisCoversheet, func(a *datum.Artifact) bool {
		return a.Status == datum.ArtifactStatusCurrent && a.Revision == 2
	})

	cancel()
	<-errCh
}

// TestDaemon_GracefulShutdown verifies context cancellation stops the
// run loop cleanly.
func TestDaemon_GracefulShutdown(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, _, errCh := startStack(ctx, t, redisURL)
	defer client.Close()

	time.Sleep(500 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Engine returned error on shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Engine did not shut down within timeout")
	}
}
