// Package payload selects the backing store for compressed entity payloads.
package payload

import (
	"fmt"
	"os"

	"chadograph/internal/cache"
	"chadograph/internal/infra/payload/memory"
	"chadograph/internal/infra/payload/postgres"
	"chadograph/internal/infra/payload/sqlite"
)

// Driver identifies a concrete payload store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // process-local map (default)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Open selects a payload store using environment variables.
// Defaults to memory when unset.
//
//	CHADOGRAPH_PAYLOAD_DRIVER: memory|sqlite|postgres (default memory)
//	CHADOGRAPH_SQLITE_PATH: path to sqlite file (default ./chadograph-payloads.db)
//	CHADOGRAPH_POSTGRES_DSN: postgres DSN when driver=postgres
func Open() (cache.PayloadStore, error) {
	driver := os.Getenv("CHADOGRAPH_PAYLOAD_DRIVER")
	if driver == "" {
		driver = string(DriverMemory)
	}
	switch Driver(driver) {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(os.Getenv("CHADOGRAPH_SQLITE_PATH"))
	case DriverPostgres:
		return postgres.NewStore(os.Getenv("CHADOGRAPH_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown payload driver %s", driver)
	}
}
