package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gamedb/pkg/record"
	"gamedb/pkg/rpc"
	"gamedb/pkg/types"
)

var ctx = context.Background()

func pause(msg string) {
	fmt.Println()
	fmt.Println(msg)
	fmt.Print("Нажми Enter, чтобы продолжить...")
	_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')
}

func game(id, date, name string) record.Record {
	return record.Record{
		ID:           id,
		PartitionKey: record.MustParseDate(date),
		Payload:      map[string]string{"name": name},
	}
}

// where prints on which nodes id currently is.
func where(c *rpc.Client, id string) {
	for _, node := range []types.NodeID{"mirror", "shardA", "shardB"} {
		rec, found, err := c.Get(ctx, node, id)
		switch {
		case err != nil:
			fmt.Printf("  %-7s ERROR: %v\n", node, err)
		case !found:
			fmt.Printf("  %-7s -\n", node)
		default:
			fmt.Printf("  %-7s %s %v\n", node, rec.PartitionKey, rec.Payload)
		}
	}
}

func must(err error) {
	if err != nil {
		log.Println("error:", err)
	}
}

// settle gives the background propagation a moment.
func settle() {
	time.Sleep(200 * time.Millisecond)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: demo http://localhost:8080")
		os.Exit(1)
	}

	c := rpc.NewClient(os.Args[1], 5*time.Second)
	if err := c.Health(ctx); err != nil {
		log.Fatalf("server is not available: %v", err)
	}

	fmt.Println("=== [ШАГ 1] запись на mirror попадает на владельца ===")
	must(c.Create(ctx, "mirror", game("demo-1", "2004-11-16", "Half-Life 2")))
	must(c.Create(ctx, "mirror", game("demo-2", "2020-03-23", "Half-Life: Alyx")))
	settle()
	where(c, "demo-1")
	where(c, "demo-2")

	fmt.Println("\n=== [ШАГ 2] шард отклоняет чужой ключ ===")
	err := c.Create(ctx, "shardA", game("demo-3", "2015-01-01", "Wrong shard"))
	fmt.Printf("  create on shardA with 2015: %v\n", err)
	where(c, "demo-3")

	pause(`=== [ШАГ 3] отказ шарда ===
Сейчас shardB будет помечен как offline. Запись на mirror пройдёт,
а операция для shardB встанет в очередь повторов.`)

	msg, err := c.SimulateFailure(ctx, "shardB", false)
	must(err)
	fmt.Println(" ", msg)

	must(c.Create(ctx, "mirror", game("demo-4", "2023-10-10", "Counter-Strike 2")))
	settle()
	where(c, "demo-4")

	pending, err := c.Pending(ctx)
	must(err)
	for _, op := range pending {
		fmt.Printf("  pending: %s %s -> %s attempts=%d\n", op.Kind, op.Stmt, op.Target, op.Attempts)
	}

	rep, err := c.Reconcile(ctx)
	must(err)
	fmt.Printf("  reconcile while offline: %+v\n", rep)

	pause("=== [ШАГ 4] shardB снова online, очередь догоняет ===")

	msg, err = c.SimulateFailure(ctx, "shardB", true)
	must(err)
	fmt.Println(" ", msg)

	rep, err = c.Reconcile(ctx)
	must(err)
	fmt.Printf("  reconcile: %+v\n", rep)
	where(c, "demo-4")

	fmt.Println("\n=== [ШАГ 5] смена года переносит запись между шардами ===")
	must(c.Update(ctx, "shardA", game("demo-1", "2012-01-01", "Half-Life 2 (remaster)")))
	settle()
	where(c, "demo-1")

	fmt.Println("\n=== [ШАГ 6] удаление с mirror доходит до владельца ===")
	must(c.Delete(ctx, "mirror", "demo-2"))
	settle()
	where(c, "demo-2")

	for _, id := range []string{"demo-1", "demo-4"} {
		must(c.Delete(ctx, "mirror", id))
	}
	fmt.Println("\nDemo complete")
}
