// Command migrate applies the SQL migrations under MIGRATIONS_DIR.
//
//	migrate up
//	migrate down
//	migrate version
//	migrate to <version>
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"cloudtickets/internal/config"
	"cloudtickets/internal/database"
	"cloudtickets/internal/database/migrations"
	"cloudtickets/internal/logger"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate up|down|version|to <version>")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	log := logger.NewLogger("cloudtickets-migrate")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Debug("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	runner := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir, log)
	// closing the migrator also closes the shared pool
	defer runner.Close()

	switch os.Args[1] {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = runner.Version()
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
		}
	case "to":
		if len(os.Args) < 3 {
			usage()
		}
		target, perr := strconv.ParseUint(os.Args[2], 10, 32)
		if perr != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("invalid version %q: %v", os.Args[2], perr))
		}
		err = runner.To(uint(target))
	default:
		usage()
	}

	if err != nil {
		log.Error("MIGRATE", err.Error())
		runner.Close()
		os.Exit(1)
	}
}
