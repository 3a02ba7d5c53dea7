package main

import (
	"database/sql"
	"fmt"

	"github.com/aakashthirteen/football-stars/go/internal/match/broadcast"
	"github.com/aakashthirteen/football-stars/go/internal/match/gateway"
	"github.com/aakashthirteen/football-stars/go/internal/match/publisher"
	"github.com/aakashthirteen/football-stars/go/internal/match/repository"
	"github.com/aakashthirteen/football-stars/go/internal/match/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

type Services struct {
	Scheduler *scheduler.Scheduler
	Gateway   *gateway.Service
	Publisher publisher.Publisher
}

func setupServices(config *Config, database *sql.DB, reg prometheus.Registerer) (*Services, error) {
	// Database layer → Repository layer → Scheduler → Gateway
	repo := repository.NewRepository(database)

	pub, err := publisher.New(config.Publisher)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	registry := broadcast.NewRegistry()
	sched := scheduler.New(config.Scheduler, scheduler.Deps{
		Store:     repo,
		Registry:  registry,
		Publisher: pub,
		Metrics:   reg,
	})

	gw := gateway.NewService(config.Gateway, sched, registry, reg)

	return &Services{
		Scheduler: sched,
		Gateway:   gw,
		Publisher: pub,
	}, nil
}
