package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

type exampleServer struct {
	manager *Manager
	applied int
}

func (s *exampleServer) push(ctx context.Context, deviceID string, batchID uuid.UUID) string {
	claim, _ := s.manager.Begin(ctx, deviceID, batchID)
	if claim.Seen {
		return "duplicate: " + claim.Result
	}
	s.applied++
	_ = s.manager.Complete(ctx, deviceID, batchID, "accepted")
	return "applied"
}

func ExampleManager_Begin() {
	ctx := context.Background()
	manager, _ := NewManager(redis.NewMemory(), 30*24*time.Hour)
	server := &exampleServer{manager: manager}
	batchID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	fmt.Println(server.push(ctx, "dev-1", batchID))
	fmt.Println(server.push(ctx, "dev-1", batchID))
	fmt.Println(server.applied)
	// Output:
	// applied
	// duplicate: accepted
	// 1
}
