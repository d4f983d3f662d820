package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/neilb14/users-service/internal/auth"
	"github.com/neilb14/users-service/internal/config"
	"github.com/neilb14/users-service/internal/repository"
	"github.com/neilb14/users-service/internal/service"
	"github.com/sirupsen/logrus"
)

const usage = "usage: manage <migrate|recreate-db|seed-db|set-active -id N [-active=false]>"

type seedUser struct {
	username, email, password string
}

var seedUsers = []seedUser{
	{"neilb", "neilb14@mailinator.com", "password123"},
	{"juneau", "juneau@mailinator.com", "password123"},
}

type app struct {
	db  *sql.DB
	svc *service.Service
	log *logrus.Logger
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := repository.NewRepository(db)
	a := &app{
		db:  db,
		svc: service.NewService(repo, auth.NewHasher(cfg), auth.NewTokenCodec(cfg), nil, logger),
		log: logger,
	}
	if err := a.run(context.Background(), os.Args[1:]); err != nil {
		logger.Fatalf("%v", err)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "migrate":
		if err := repository.RunMigrations(ctx, a.db); err != nil {
			return err
		}
		a.log.Info("Migrations applied")
	case "recreate-db":
		if err := repository.RecreateSchema(ctx, a.db); err != nil {
			return err
		}
		a.log.Info("Database recreated")
	case "seed-db":
		return a.seed(ctx)
	case "set-active":
		return a.setActive(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	return nil
}

func (a *app) seed(ctx context.Context) error {
	for _, u := range seedUsers {
		_, err := a.svc.AddUser(ctx, u.username, u.email, u.password)
		if errors.Is(err, service.ErrConflict) {
			a.log.Infof("Seed user %s already present", u.email)
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", u.email, err)
		}
	}
	a.log.Infof("Seeded %d users", len(seedUsers))
	return nil
}

func (a *app) setActive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-active", flag.ContinueOnError)
	id := fs.Int64("id", 0, "user id")
	active := fs.Bool("active", true, "desired active flag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("set-active: -id is required")
	}
	return a.svc.SetActive(ctx, *id, *active)
}
