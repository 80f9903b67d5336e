package database

import (
	"database/sql"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RegisterSQLStats exports database/sql pool statistics for db under the
// given name. Registering the same name twice is not an error.
func RegisterSQLStats(reg prometheus.Registerer, db *sql.DB, name string) error {
	err := reg.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}
