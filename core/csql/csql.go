package csql

import (
	"database/sql"

	_ "github.com/lib/pq" // load database driver for postgres

	"github.com/relabs-tech/provisio/core/logger"
)

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a row.
var ErrNoRows = sql.ErrNoRows

// OpenWithSchema opens a postgres database with a schema. The schema gets
// created if it does not exist yet.
func OpenWithSchema(dataSourceName, schema string) *DB {
	logger.Default().Infoln("connecting to postgres database")
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		panic(err)
	}
	if err := db.Ping(); err != nil {
		panic(err)
	}
	if len(schema) == 0 {
		schema = "public"
	} else {
		logger.Default().Infoln("selected database schema:", schema)
		if _, err := db.Exec(`CREATE schema IF NOT EXISTS ` + schema + `;`); err != nil {
			panic(err)
		}
	}
	return &DB{DB: db, Schema: schema}
}
