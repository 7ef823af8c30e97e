// Command rebuild re-derives the materialized on-hand balances and open
// custody rows by replaying the movement log. The log is the source of
// truth; run this whenever the aggregates are suspected to have drifted.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/egms/storeledger/internal/adapter/storage"
)

func main() {
	driver := flag.String("driver", "sqlite", "database driver (sqlite or mysql)")
	dsn := flag.String("dsn", "storeledger.db", "database DSN")
	redisAddr := flag.String("redis", "", "redis address; when set, the balance mirror is flushed after the rebuild")
	flag.Parse()

	ctx := context.Background()

	db, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if *driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	report, err := storage.NewSQLAdapter(db).Rebuild(ctx)
	if err != nil {
		log.Fatalf("rebuild: %v", err)
	}
	log.Printf("replayed %d movements: %d balances, %d custody rows rewritten",
		report.Movements, report.Items, report.CustodyRows)

	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		if err := storage.NewRedisAdapter(rdb).FlushBalances(ctx); err != nil {
			log.Fatalf("flush balance mirror: %v", err)
		}
		log.Printf("balance mirror flushed")
	}
}
