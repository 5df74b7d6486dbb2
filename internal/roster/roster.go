package roster

import (
	"context"
	"sort"
	"sync"

	logx "vidbot/pkg/logx"
)

// Roster is the in-memory user cache plus its persistence handle. It owns
// the never-raise load policy and the best-effort save policy: a missing or
// unreadable backing store yields an empty roster, and a failed save is
// logged but never propagated.
type Roster struct {
	mu    sync.Mutex
	users map[int64]User

	store Store
	log   logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Roster, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	users, err := store.Load(context.Background())
	if err != nil {
		log.Warn("roster load failed; starting with empty roster", logx.Err(err), logx.String("path", cfg.Path))
		users = map[int64]User{}
	}
	return &Roster{users: users, store: store, log: log}, nil
}

func (r *Roster) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

func (r *Roster) Get(id int64) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	return u, ok
}

func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Upsert inserts or replaces a user record.
func (r *Roster) Upsert(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.Status == "" {
		u.Status = StatusActive
	}
	r.users[u.ID] = u
}

// SetStatus flips a user's status and reports whether anything changed.
func (r *Roster) SetStatus(id int64, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.Status == status {
		return false
	}
	u.Status = status
	r.users[id] = u
	return true
}

// Active returns a snapshot of users currently marked active.
func (r *Roster) Active() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		if u.Status == StatusActive {
			out = append(out, u)
		}
	}
	return out
}

// List returns all users ordered by id for stable listings.
func (r *Roster) List() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns total/active/blocked counts.
func (r *Roster) Stats() (total, active, blocked int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total = len(r.users)
	for _, u := range r.users {
		switch u.Status {
		case StatusBlocked:
			blocked++
		default:
			active++
		}
	}
	return
}

// Save persists the current roster. Failures are logged and swallowed; a
// broken disk must not take down message handling.
func (r *Roster) Save(ctx context.Context) {
	r.mu.Lock()
	snapshot := make(map[int64]User, len(r.users))
	for id, u := range r.users {
		snapshot[id] = u
	}
	r.mu.Unlock()

	if err := r.store.Save(ctx, snapshot); err != nil {
		r.log.Error("roster save failed", logx.Err(err), logx.Int("users", len(snapshot)))
	}
}
