// Package migrations embeds the SQL schema for each supported database
// driver. Files are applied in lexicographical order by the store adapters.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Postgres returns the migration files for the postgres store.
func Postgres() fs.FS {
	return mustSub("postgres")
}

// SQLite returns the migration files for the sqlite store.
func SQLite() fs.FS {
	return mustSub("sqlite")
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
