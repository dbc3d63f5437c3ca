package store

import "fmt"

// Open constructs the Store backend named by driver ("sqlite" or
// "postgres") against dsn. Callers get config validation for free: config.Load
// already rejects any other driver value before this is ever called.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
