package pg

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DriverName string

const DRIVERNAME_POSTGRES DriverName = "postgres"

// GetConnection opens and pings a postgres connection pool.
func GetConnection(conn string) (*sqlx.DB, error) {
	return sqlx.Connect(string(DRIVERNAME_POSTGRES), conn)
}
