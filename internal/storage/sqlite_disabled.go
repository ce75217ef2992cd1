//go:build !sqlite

package storage

func openSQLite(cfg Config) (Backend, error) {
	return nil, ErrDriverDisabled
}
