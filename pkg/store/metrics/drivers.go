package metrics

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/databricks/databricks-sql-go"
	_ "github.com/lib/pq"
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/de-tools/kpi-delta/pkg/config"
)

// placeholderStyle renders the n-th query placeholder for a dialect.
type placeholderStyle func(n int) string

func dollarPlaceholders(n int) string { return "$" + strconv.Itoa(n) }
func questionPlaceholders(int) string { return "?" }

// driverNames maps the config driver key to the registered
// database/sql driver name.
var driverNames = map[string]string{
	"postgres":   "postgres",
	"databricks": "databricks",
	"snowflake":  "snowflake",
}

func placeholders(driver string) (placeholderStyle, error) {
	switch driver {
	case "postgres":
		return dollarPlaceholders, nil
	case "databricks", "snowflake":
		return questionPlaceholders, nil
	default:
		return nil, fmt.Errorf("unsupported metrics store driver: %q", driver)
	}
}

// Open connects to the configured metrics store and wraps it in a Store.
func Open(cfg config.Storage) (Store, *sql.DB, error) {
	name, ok := driverNames[cfg.Driver]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported metrics store driver: %q", cfg.Driver)
	}
	db, err := sql.Open(name, cfg.DSN)
	if err != nil {
		return nil, nil, &DataSourceError{Op: "open connection", Err: err}
	}
	store, err := NewStore(db, cfg.Driver)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
