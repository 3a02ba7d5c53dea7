package main

import (
	"database/sql"
	"fmt"

	"github.com/aakashthirteen/football-stars/go/internal/dbconfig"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

func setupDatabase() (*sql.DB, error) {
	dbConfig := dbconfig.FromEnv()

	database, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	dbConfig.Apply(database)

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("dsn", dbConfig.Redacted()).
		Int("max_open_conns", dbConfig.MaxOpenConns).
		Msg("connected to database")
	return database, nil
}
