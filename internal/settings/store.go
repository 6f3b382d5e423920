package settings

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const keyDarkMode = "dark_mode"

// Store persists the process-wide user preference in sqlite.
// It is loaded once at start and written on every change.
type Store struct {
	conn *sql.DB

	mu       sync.RWMutex
	darkMode bool
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create settings dir")
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open settings db")
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS settings (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "create settings table")
	}
	return &Store{conn: conn}, nil
}

// Load reads the stored values into memory. A missing row means the default.
func (s *Store) Load() error {
	var value string
	err := s.conn.QueryRow("SELECT value FROM settings WHERE key = ?", keyDarkMode).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load dark mode")
	}

	dark, err := strconv.ParseBool(value)
	if err != nil {
		return errors.Wrapf(err, "invalid stored dark mode %q", value)
	}

	s.mu.Lock()
	s.darkMode = dark
	s.mu.Unlock()
	return nil
}

func (s *Store) DarkMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.darkMode
}

// SetDarkMode stores the flag and updates the in-memory copy.
func (s *Store) SetDarkMode(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(keyDarkMode, strconv.FormatBool(on)); err != nil {
		return err
	}
	s.darkMode = on
	return nil
}

// ToggleDarkMode flips the flag and returns the new value.
func (s *Store) ToggleDarkMode() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := !s.darkMode
	if err := s.save(keyDarkMode, strconv.FormatBool(next)); err != nil {
		return s.darkMode, err
	}
	s.darkMode = next
	return next, nil
}

func (s *Store) save(key, value string) error {
	_, err := s.conn.Exec("INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	return errors.Wrapf(err, "save %s", key)
}

func (s *Store) Close() error {
	return s.conn.Close()
}
