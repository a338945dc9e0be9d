package database

import (
	"os"

	"MozoPOS/pkg/logging"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

func Exists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// Open opens (creating if needed) the local sqlite store and applies the schema.
func Open(dbname string) (*sqlx.DB, error) {
	logger := logging.GetLogger()
	logger.Debug("Open:>Start")
	defer logger.Debug("Open:>End")

	if dbname != ":memory:" {
		if Exists(dbname) {
			logger.Debug(dbname, " exist")
		} else {
			logger.Info(dbname, " not exist, creating")
		}
	}

	db, err := sqlx.Open("sqlite3", dbname)
	if err != nil {
		return nil, errors.Wrapf(err, "failed sqlx.Open(%s)", dbname)
	}
	if dbname == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(DB_SCHEMA); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to apply schema to %s", dbname)
	}

	var version int
	err = db.Get(&version, "SELECT COUNT(*) FROM Version WHERE Name = ?", "schema")
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to read schema version")
	}
	if version == 0 {
		if _, err := db.Exec("INSERT INTO Version (Name, Version) VALUES (?, ?)", "schema", DB_VERSION); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "failed to write schema version")
		}
	}
	return db, nil
}
