// Command migrate copies the catalog from one store to another, for
// example from the old SQLite file into Postgres.  The source is only read
// and may still use the first release's camelCase columns:
//
//	migrate -from sqlite -from-dsn data/site.db -to postgres -to-dsn "$DATABASE_URL"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/repository"
)

func main() {
	fromDriver := flag.String("from", "sqlite", "source engine (sqlite, mysql, postgres)")
	fromDSN := flag.String("from-dsn", "data/site.db", "source DSN or file")
	toDriver := flag.String("to", "postgres", "target engine (sqlite, mysql, postgres)")
	toDSN := flag.String("to-dsn", os.Getenv("DATABASE_URL"), "target DSN or file")
	timeout := flag.Duration("timeout", 10*time.Minute, "give up after this long")
	flag.Parse()

	if *toDSN == "" {
		fmt.Fprintln(os.Stderr, "missing -to-dsn (or DATABASE_URL)")
		os.Exit(2)
	}
	if err := run(*fromDriver, *fromDSN, *toDriver, *toDSN, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(fromDriver, fromDSN, toDriver, toDSN string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	src, err := database.Open(fromDriver, fromDSN)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()
	dst, err := database.Open(toDriver, toDSN)
	if err != nil {
		return fmt.Errorf("opening target: %w", err)
	}
	defer dst.Close()

	if err := database.Migrate(ctx, dst); err != nil {
		return fmt.Errorf("preparing target: %w", err)
	}

	fmt.Println("Starting migration...")
	st, err := repository.CopyCatalog(ctx, src, dst)
	if err != nil {
		return err
	}
	fmt.Printf("Products: %d copied, %d already present\n", st.Products, st.ProductsSkipped)
	fmt.Printf("Reviews:  %d copied, %d already present\n", st.Reviews, st.ReviewsSkipped)
	fmt.Println("Settings copied")
	fmt.Println("Migration complete")
	return nil
}
