// Package roster persists the set of known recipient users and their
// reachability status. Users are created on first contact and never deleted;
// only their status flips when a delivery reports them unreachable.
package roster

import "context"

type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Status   Status `json:"status"`
}

// Store is the persistence backend. Drivers report real errors; the
// never-raise load policy and best-effort save policy live in Roster.
type Store interface {
	Load(ctx context.Context) (map[int64]User, error)
	Save(ctx context.Context, users map[int64]User) error
	Close() error
}

// Config selects and configures the backend.
//
// Driver values:
//   - "file": JSON file keyed by stringified user id (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout string // sqlite only; Go duration string
}
