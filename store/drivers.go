package store

import (
	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"
)
