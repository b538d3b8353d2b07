package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/jwebster45206/loot-list/internal/config"
	"github.com/jwebster45206/loot-list/internal/services/queue"
	queuePkg "github.com/jwebster45206/loot-list/pkg/queue"
	"github.com/redis/go-redis/v9"
)

func main() {
	source := flag.String("source", "dragon-hoard", "record whose committed loot list is granted")
	target := flag.String("target", "hero", "record receiving the loot")
	count := flag.Int("n", 1, "number of requests to enqueue")
	flag.Parse()

	cfg := config.Load()
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	fmt.Println("Connected to Redis successfully!")

	grantQueue := queue.NewGrantQueue(client)
	for i := 0; i < *count; i++ {
		req := queuePkg.NewRequest(*source, *target)
		if err := grantQueue.EnqueueRequest(ctx, req); err != nil {
			log.Fatal("Failed to enqueue request:", err)
		}
		fmt.Printf("✅ Enqueued grant request: %s (%s -> %s)\n", req.RequestID, *source, *target)
	}

	depth, err := grantQueue.RequestQueueDepth(ctx)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}

	fmt.Printf("\n📊 Queue depth: %d requests\n", depth)
	fmt.Println("\n💡 Now start the worker to see it process these requests!")
	fmt.Println("   Run: go run cmd/worker/main.go")
}
