package storage

import "fmt"

// Open constructs the backend selected by cfg.
func Open(cfg Config) (Backend, error) {
	switch cfg.Driver {
	case "", "file":
		return openFile(cfg)
	case "sqlite":
		return openSQLite(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
