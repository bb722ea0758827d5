package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/academico/internal/db"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	_ = godotenv.Load()

	down := flag.Bool("down", false, "desfaz todas as migrações")
	flag.Parse()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	if !*down {
		if err := db.Migrate(dsn); err != nil {
			log.Fatal().Err(err).Msg("falha ao migrar")
		}
		log.Info().Msg("migrações aplicadas")
		return
	}

	m, err := db.NewMigrator(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("falha ao abrir migrador")
	}
	defer m.Close()
	if err := m.Down(); err != nil && err != migrate.ErrNoChange {
		log.Fatal().Err(err).Msg("falha ao desfazer migrações")
	}
	log.Info().Msg("migrações desfeitas")
}
