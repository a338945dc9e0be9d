package setting

import (
	"database/sql"
	"time"

	"MozoPOS/pkg/logging"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	KEY_DRAFT      = "draft"
	KEY_LAST_TABLE = "last_table"
)

// Setting is one key/value row of local staging data.
type Setting struct {
	Key     string         `db:"Key"`
	Value   string         `db:"Value"`
	ModTime sql.NullString `db:"ModTime"`
}

// Get returns the value of key and whether it exists.
func Get(db *sqlx.DB, key string) (string, bool, error) {
	logger := logging.GetLogger()
	logger.Debugf("Setting.Get(%s)", key)

	var s Setting
	err := db.Get(&s, "SELECT Key, Value, ModTime FROM Setting WHERE Key = ?;", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed SELECT Setting; key: %s", key)
	}
	return s.Value, true, nil
}

func Set(db *sqlx.DB, key, value string) error {
	logging.GetLogger().Debugf("Setting.Set(%s)", key)

	_, err := db.Exec("INSERT OR REPLACE INTO Setting (Key, Value, ModTime) VALUES (?, ?, ?);",
		key, value, time.Now().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed INSERT Setting; key: %s", key)
	}
	return nil
}

// Delete removes the given keys in one transaction.
func Delete(db *sqlx.DB, keys ...string) (err error) {
	logger := logging.GetLogger()
	logger.Debugf("Setting.Delete(%v)", keys)

	tx, err := db.Beginx()
	if err != nil {
		return errors.Wrap(err, "failed Beginx()")
	}
	defer func() {
		if err != nil {
			if errRollback := tx.Rollback(); errRollback != nil {
				logger.Errorf("failed in Rollback(); %v", errRollback)
			}
		}
	}()

	for _, key := range keys {
		if _, err = tx.Exec("DELETE FROM Setting WHERE Key = ?;", key); err != nil {
			return errors.Wrapf(err, "failed DELETE Setting; key: %s", key)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed Commit()")
	}
	return nil
}
