package database

const DB_NAME = "mozopos.db"

const DB_SCHEMA = `CREATE TABLE IF NOT EXISTS Version (
	ID integer PRIMARY KEY AUTOINCREMENT,
	Name text,
	Version integer
);

CREATE TABLE IF NOT EXISTS Setting (
	Key text PRIMARY KEY,
	Value text NOT NULL,
	ModTime text
);
`

const DB_VERSION = 1
