//go:build !sqlite
// +build !sqlite

package roster

import "errors"

func openSQLite(cfg Config) (Store, error) {
	_ = cfg
	return nil, errors.New("sqlite roster driver not built (build with -tags sqlite)")
}
