package shared

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/constants"
	"github.com/xo/dburl"
)

// rawOdbcPrefix marks a DSN that is handed to the ODBC driver untouched, e.g. "odbc:DSN=progress;UID=u;PWD=p".
const rawOdbcPrefix = constants.ConnectionTypeOdbc + ":"

// DsnConnectionDetails is a simple struct to hold a DSN only.
type DsnConnectionDetails struct {
	Dsn            string `errorTxt:"data source name i.e. connect string" mandatory:"yes"`
	OriginalScheme string
	Driver         string
	DriverDsn      string
}

// NewDsnConnectionDetails parses dsn and resolves the Go SQL driver to use.
func NewDsnConnectionDetails(dsn string) (*DsnConnectionDetails, error) {
	d := &DsnConnectionDetails{Dsn: strings.TrimSpace(dsn)}
	if err := d.Parse(); err != nil {
		return nil, err
	}
	return d, nil
}

// String returns the DSN with redacted password.
func (d DsnConnectionDetails) String() string {
	if isRawOdbc(d.Dsn) {
		return rawOdbcPrefix + redactOdbcAttributes(strings.TrimPrefix(d.Dsn, rawOdbcPrefix))
	}
	u, err := dburl.Parse(d.Dsn)
	if err != nil {
		return "<unparseable DSN>"
	}
	return u.Redacted()
}

// Parse validates the DSN and saves the scheme and driver details.
func (d *DsnConnectionDetails) Parse() error {
	if d.Dsn == "" {
		return errors.New("DSN not found")
	}
	if isRawOdbc(d.Dsn) {
		d.OriginalScheme = constants.ConnectionTypeOdbc
		d.Driver = constants.ConnectionTypeOdbc
		d.DriverDsn = strings.TrimPrefix(d.Dsn, rawOdbcPrefix)
		return nil
	}
	u, err := dburl.Parse(d.Dsn)
	if err != nil {
		return errors.Wrap(err, "DSN could not be parsed")
	}
	d.OriginalScheme = u.OriginalScheme // save the full connection type e.g. odbc+progress.
	d.Driver = u.Driver
	d.DriverDsn = u.DSN
	return nil
}

// GetScheme returns the scheme, parsing the DSN if needed.
func (d *DsnConnectionDetails) GetScheme() (string, error) {
	if d.OriginalScheme == "" {
		if err := d.Parse(); err != nil {
			return "", err
		}
	}
	return d.OriginalScheme, nil
}

// IsOdbc reports whether the connection goes through the ODBC driver.
func (d *DsnConnectionDetails) IsOdbc() bool {
	return d.Driver == constants.ConnectionTypeOdbc
}

// IsSqlServer reports whether the connection uses the native SQL Server driver.
func (d *DsnConnectionDetails) IsSqlServer() bool {
	return d.Driver == constants.ConnectionTypeSqlServer || d.Driver == constants.ConnectionTypeMssql
}

func isRawOdbc(dsn string) bool {
	return strings.HasPrefix(strings.ToLower(dsn), rawOdbcPrefix) && !strings.HasPrefix(strings.ToLower(dsn), rawOdbcPrefix+"//")
}

// redactOdbcAttributes masks PWD/Password attribute values in an ODBC connection string.
func redactOdbcAttributes(s string) string {
	parts := strings.Split(s, ";")
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "pwd", "password":
			parts[i] = fmt.Sprintf("%v=xxxxx", kv[0])
		}
	}
	return strings.Join(parts, ";")
}
