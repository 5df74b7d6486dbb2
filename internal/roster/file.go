package roster

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
)

// fileStore keeps the roster as a single JSON object mapping stringified
// user id to the user record. The file is rewritten wholesale on save, via
// a temp file and rename so a crash mid-write never corrupts it.
type fileStore struct {
	path string
}

func openFile(cfg Config) (Store, error) {
	path := cfg.Path
	if path == "" {
		return nil, errors.New("roster path is required for file driver")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &fileStore{path: path}, nil
}

func (s *fileStore) Load(ctx context.Context) (map[int64]User, error) {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[int64]User{}, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]User
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}

	users := make(map[int64]User, len(raw))
	for k, u := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		if u.ID == 0 {
			u.ID = id
		}
		if u.Status == "" {
			u.Status = StatusActive
		}
		users[id] = u
	}
	return users, nil
}

func (s *fileStore) Save(ctx context.Context, users map[int64]User) error {
	_ = ctx
	raw := make(map[string]User, len(users))
	for id, u := range users {
		raw[strconv.FormatInt(id, 10)] = u
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error { return nil }
