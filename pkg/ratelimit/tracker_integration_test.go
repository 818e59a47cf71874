//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_DefaultState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	ctx := context.Background()

	state, err := tracker.GetState(ctx, "semanticscholar")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.IsCoolingDown() {
		t.Error("fresh service should not be cooling down")
	}

	allowed, err := tracker.ShouldAllowRequest(ctx, "semanticscholar")
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("request should be allowed without cooldown")
	}
}

func TestTracker_Integration_Cooldown(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	ctx := context.Background()

	headers := http.Header{}
	headers.Set("Retry-After", "2")

	if err := tracker.UpdateFromResponse(ctx, "semanticscholar", http.StatusTooManyRequests, headers); err != nil {
		t.Fatalf("UpdateFromResponse() error = %v", err)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx, "semanticscholar")
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("request should be blocked during cooldown")
	}

	// Other services are unaffected
	allowed, _ = tracker.ShouldAllowRequest(ctx, "pinecone")
	if !allowed {
		t.Error("cooldown leaked to another service")
	}

	time.Sleep(2500 * time.Millisecond)

	allowed, err = tracker.ShouldAllowRequest(ctx, "semanticscholar")
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("request should be allowed after cooldown expired")
	}
}

func TestTracker_Integration_IgnoresOtherStatuses(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	ctx := context.Background()

	headers := http.Header{}
	headers.Set("Retry-After", "60")

	for _, status := range []int{http.StatusOK, http.StatusInternalServerError, http.StatusBadRequest} {
		if err := tracker.UpdateFromResponse(ctx, "semanticscholar", status, headers); err != nil {
			t.Fatalf("UpdateFromResponse(%d) error = %v", status, err)
		}
	}

	state, err := tracker.GetState(ctx, "semanticscholar")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.IsCoolingDown() {
		t.Error("non-429/503 responses must not start a cooldown")
	}
}
