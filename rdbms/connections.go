package rdbms

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/alexbrainman/odbc"
	_ "github.com/denisenkom/go-mssqldb"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/rdbms/shared"
)

// OpenSourceConnection opens and pings the legacy source through the ODBC driver.
func OpenSourceConnection(ctx context.Context, log logger.Logger, dsn string) (shared.Connector, error) {
	d, err := shared.NewDsnConnectionDetails(dsn)
	if err != nil {
		return nil, err
	}
	if !d.IsOdbc() {
		return nil, fmt.Errorf("unsupported source connection type %q: expected an odbc DSN", d.OriginalScheme)
	}
	return openConnection(ctx, log, d, d.Driver)
}

// OpenTargetConnection opens and pings the SQL Server warehouse.
func OpenTargetConnection(ctx context.Context, log logger.Logger, dsn string) (shared.Connector, error) {
	d, err := shared.NewDsnConnectionDetails(dsn)
	if err != nil {
		return nil, err
	}
	if !d.IsSqlServer() {
		return nil, fmt.Errorf("unsupported target connection type %q: expected a sqlserver DSN", d.OriginalScheme)
	}
	// The sqlserver driver name gives @pN placeholders.
	return openConnection(ctx, log, d, constants.ConnectionTypeSqlServer)
}

func openConnection(ctx context.Context, log logger.Logger, d *shared.DsnConnectionDetails, driver string) (shared.Connector, error) {
	log.Debug("Opening database connection: ", d)
	conn := &shared.HpConnection{
		Dml:    &shared.DmlGeneratorTxtBatch{},
		DbType: d.OriginalScheme,
	}
	var err error
	conn.DbSql, err = sql.Open(driver, d.DriverDsn)
	if err != nil {
		return nil, err
	}
	if err = conn.DbSql.PingContext(ctx); err != nil {
		_ = conn.DbSql.Close()
		return nil, err
	}
	log.Debug("Successful connection to: ", d)
	return conn, nil
}
