// Command tools runs maintenance tasks: schema migrations, client token
// issuance, and purging idle client storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/travelrizz/travelrizz-backend/internal/auth"
	"github.com/travelrizz/travelrizz-backend/internal/config"
	"github.com/travelrizz/travelrizz-backend/internal/database"
	"github.com/travelrizz/travelrizz-backend/internal/logging"
	"github.com/travelrizz/travelrizz-backend/internal/storage"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tools <command> [flags]

Commands:
  migrate up|down|version   manage the database schema
  token [-client ID]        issue a client token
  purge [-idle DURATION]    delete client storage idle for longer than DURATION
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load configuration: ", err)
	}
	logger := logging.New(cfg.Log)

	switch os.Args[1] {
	case "migrate":
		if len(os.Args) < 3 {
			usage()
		}
		if err := migrate(cfg, os.Args[2]); err != nil {
			logger.WithError(err).Fatal("Migration failed")
		}
	case "token":
		fs := flag.NewFlagSet("token", flag.ExitOnError)
		clientID := fs.String("client", "", "client ID (a new one is generated when empty)")
		_ = fs.Parse(os.Args[2:])
		if err := issueToken(cfg, *clientID); err != nil {
			logger.WithError(err).Fatal("Failed to issue token")
		}
	case "purge":
		fs := flag.NewFlagSet("purge", flag.ExitOnError)
		idle := fs.Duration("idle", cfg.Session.AbsoluteTimeout, "idle time after which client storage is deleted")
		_ = fs.Parse(os.Args[2:])
		n, err := purge(cfg, *idle)
		if err != nil {
			logger.WithError(err).Fatal("Purge failed")
		}
		logger.WithField("rows", n).Info("Purged idle client storage")
	default:
		usage()
	}
}

func migrate(cfg *config.Config, direction string) error {
	switch direction {
	case "up":
		return database.RunMigrations(cfg.Database)
	case "down":
		return database.RollbackMigration(cfg.Database)
	case "version":
		version, dirty, err := database.Version(cfg.Database)
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %v)\n", version, dirty)
		return nil
	}
	return fmt.Errorf("unknown migrate direction %q", direction)
}

func issueToken(cfg *config.Config, clientID string) error {
	if cfg.Auth.TokenSecret == "" {
		return fmt.Errorf("TRAVEL_TOKEN_SECRET is not set")
	}
	tokens := auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	var (
		token string
		err   error
	)
	if clientID == "" {
		clientID, token, err = tokens.Issue()
	} else {
		token, err = tokens.IssueFor(clientID)
	}
	if err != nil {
		return err
	}
	fmt.Printf("client: %s\ntoken:  %s\n", clientID, token)
	return nil
}

func purge(cfg *config.Config, idle time.Duration) (int64, error) {
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return storage.NewPostgresStore(db.DB).PurgeIdle(ctx, idle)
}
