package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gamedb/pkg/record"
	"gamedb/pkg/rpc"
	"gamedb/pkg/types"
)

type BenchmarkResult struct {
	TotalOps      int
	SuccessfulOps int
	FailedOps     int
	Duration      time.Duration
	OpsPerSec     float64
	AvgLatency    time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
}

func main() {
	baseURL := "http://localhost:8080"
	if len(os.Args) > 1 {
		baseURL = os.Args[1]
	}
	c := rpc.NewClient(baseURL, 5*time.Second)
	run := time.Now().UnixNano()

	fmt.Println("=== gamedb Benchmark Test ===")
	fmt.Printf("Target: %s\n", baseURL)
	fmt.Println()

	// Проверка доступности
	if err := c.Health(context.Background()); err != nil {
		fmt.Printf("ERROR: server %s is not available: %v\n", baseURL, err)
		return
	}

	// Тест 1: Последовательные записи на mirror
	fmt.Println("Test 1: Sequential creates on mirror (100 operations)")
	printResult(benchmark(100, 1, func(g, i int) error {
		return c.Create(context.Background(), "mirror", benchGame(run, "seq", g, i))
	}))

	// Тест 2: Параллельные записи на mirror
	fmt.Println("\nTest 2: Concurrent creates on mirror (100 operations, 10 goroutines)")
	printResult(benchmark(100, 10, func(g, i int) error {
		return c.Create(context.Background(), "mirror", benchGame(run, "par", g, i))
	}))

	// Даём время на репликацию
	time.Sleep(500 * time.Millisecond)

	// Тест 3: Параллельные чтения с шардов-владельцев
	fmt.Println("\nTest 3: Concurrent reads from owning shards (100 operations, 10 goroutines)")
	printResult(benchmark(100, 10, func(g, i int) error {
		rec := benchGame(run, "par", g, i)
		owner := types.NodeID("shardB")
		if rec.PartitionKey.Year() < 2010 {
			owner = "shardA"
		}
		_, found, err := c.Get(context.Background(), owner, rec.ID)
		if err == nil && !found {
			err = fmt.Errorf("%s not replicated to %s", rec.ID, owner)
		}
		return err
	}))

	fmt.Println("\n=== Benchmark Complete ===")
}

// benchGame spreads partition keys over 2000-2019 so both shards get load.
func benchGame(run int64, prefix string, goroutineID, j int) record.Record {
	n := goroutineID*1000 + j
	return record.Record{
		ID:           fmt.Sprintf("bench-%d-%s-%d-%d", run, prefix, goroutineID, j),
		PartitionKey: record.NewDate(2000+n%20, time.Month(1+n%12), 1+n%28),
		Payload:      map[string]string{"name": fmt.Sprintf("bench game %d", n)},
	}
}

func benchmark(totalOps, concurrency int, op func(goroutineID, j int) error) BenchmarkResult {
	start := time.Now()
	var wg sync.WaitGroup
	var mu sync.Mutex

	successful := 0
	failed := 0
	latencies := make([]time.Duration, 0, totalOps)

	opsPerGoroutine := totalOps / concurrency
	remainder := totalOps % concurrency

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()

			ops := opsPerGoroutine
			if goroutineID < remainder {
				ops++
			}

			for j := 0; j < ops; j++ {
				opStart := time.Now()
				err := op(goroutineID, j)
				latency := time.Since(opStart)

				mu.Lock()
				if err == nil {
					successful++
				} else {
					failed++
				}
				latencies = append(latencies, latency)
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)

	// Вычисление статистики латентности
	var min, max, sum time.Duration
	if len(latencies) > 0 {
		min = latencies[0]
		max = latencies[0]
		for _, lat := range latencies {
			if lat < min {
				min = lat
			}
			if lat > max {
				max = lat
			}
			sum += lat
		}
	}
	var avgLatency time.Duration
	if len(latencies) > 0 {
		avgLatency = sum / time.Duration(len(latencies))
	}

	return BenchmarkResult{
		TotalOps:      totalOps,
		SuccessfulOps: successful,
		FailedOps:     failed,
		Duration:      duration,
		OpsPerSec:     float64(successful) / duration.Seconds(),
		AvgLatency:    avgLatency,
		MinLatency:    min,
		MaxLatency:    max,
	}
}

func printResult(result BenchmarkResult) {
	fmt.Printf("  Total Operations: %d\n", result.TotalOps)
	fmt.Printf("  Successful: %d\n", result.SuccessfulOps)
	fmt.Printf("  Failed: %d\n", result.FailedOps)
	fmt.Printf("  Duration: %v\n", result.Duration)
	fmt.Printf("  Operations/sec: %.2f\n", result.OpsPerSec)
	fmt.Printf("  Avg Latency: %v\n", result.AvgLatency)
	fmt.Printf("  Min Latency: %v\n", result.MinLatency)
	fmt.Printf("  Max Latency: %v\n", result.MaxLatency)
}
