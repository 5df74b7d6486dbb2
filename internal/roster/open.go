package roster

import (
	"errors"
	"strings"
)

// openStore initializes the configured backend. An empty driver defaults to
// the JSON file store.
func openStore(cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg)
	case "sqlite", "sqlite3":
		return openSQLite(cfg)
	default:
		return nil, errors.New("unknown roster driver: " + driver)
	}
}
