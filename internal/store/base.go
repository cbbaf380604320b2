package store

import (
	"database/sql"

	"github.com/rs/zerolog"
)

// base embeds the shared connection and logger every repository needs.
type base struct {
	db  *sql.DB
	log zerolog.Logger
}

func newBase(db *sql.DB, log zerolog.Logger, component string) base {
	return base{db: db, log: log.With().Str("repo", component).Logger()}
}
