// Package devicestate persists the per-device referral state: the captured
// referrer code, the install date, the install-logged flag and the stable
// installation id. It is owned by one device and has a single writer.
package devicestate

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

const (
	keyInstallationID = "device:installation_id"
	keyReferrerCode   = "device:referrer_code"
	keyInstallDate    = "device:install_date"
	keyInstallLogged  = "device:install_logged"
)

var syncWrite = &opt.WriteOptions{Sync: true}

// State is a snapshot of the device's referral state.
type State struct {
	InstallationID string     `json:"installation_id"`
	ReferrerCode   string     `json:"referrer_code,omitempty"`
	InstallDate    *time.Time `json:"install_date,omitempty"`
	InstallLogged  bool       `json:"install_logged"`
}

// HasReferrer reports whether a referral code was ever captured.
func (s State) HasReferrer() bool { return s.ReferrerCode != "" }

// Store is the LevelDB-backed device state.
type Store struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (or creates) the device state database at path.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("device state path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve device state path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open device state: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory returns a Store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open in-memory device state: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying LevelDB resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) get(key string) (string, bool, error) {
	v, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(v), true, nil
}

// load reads every field. Callers hold s.mu.
func (s *Store) load() (State, error) {
	var st State

	id, ok, err := s.get(keyInstallationID)
	if err != nil {
		return st, err
	}
	if !ok {
		id = uuid.NewString()
		if err := s.db.Put([]byte(keyInstallationID), []byte(id), syncWrite); err != nil {
			return st, fmt.Errorf("write installation id: %w", err)
		}
	}
	st.InstallationID = id

	if st.ReferrerCode, _, err = s.get(keyReferrerCode); err != nil {
		return st, err
	}

	raw, ok, err := s.get(keyInstallDate)
	if err != nil {
		return st, err
	}
	if ok {
		t, perr := time.Parse(time.RFC3339Nano, raw)
		if perr != nil {
			return st, fmt.Errorf("parse install date %q: %w", raw, perr)
		}
		st.InstallDate = &t
	}

	logged, _, err := s.get(keyInstallLogged)
	if err != nil {
		return st, err
	}
	st.InstallLogged = logged == "true"
	return st, nil
}

// Load returns the current state, creating the installation id on first access.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// CaptureReferral stores code unless a referrer is already recorded (first
// write wins) and seeds the install date if it is unset. It reports whether
// code became the device's referrer.
func (s *Store) CaptureReferral(code string, now time.Time) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return st, false, err
	}

	batch := new(leveldb.Batch)
	captured := false
	if code != "" && !st.HasReferrer() {
		batch.Put([]byte(keyReferrerCode), []byte(code))
		st.ReferrerCode = code
		captured = true
	}
	if st.InstallDate == nil {
		t := now.UTC()
		batch.Put([]byte(keyInstallDate), []byte(t.Format(time.RFC3339Nano)))
		st.InstallDate = &t
	}
	if batch.Len() == 0 {
		return st, false, nil
	}
	if err := s.db.Write(batch, syncWrite); err != nil {
		return st, false, fmt.Errorf("write referral capture: %w", err)
	}
	return st, captured, nil
}

// EnsureInstallDate returns the stored install date, writing now if none exists.
func (s *Store) EnsureInstallDate(now time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return time.Time{}, err
	}
	if st.InstallDate != nil {
		return *st.InstallDate, nil
	}
	t := now.UTC()
	if err := s.db.Put([]byte(keyInstallDate), []byte(t.Format(time.RFC3339Nano)), syncWrite); err != nil {
		return time.Time{}, fmt.Errorf("write install date: %w", err)
	}
	return t, nil
}

// MarkInstallLogged sets the one-way install-logged flag.
func (s *Store) MarkInstallLogged() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put([]byte(keyInstallLogged), []byte("true"), syncWrite); err != nil {
		return fmt.Errorf("write install logged: %w", err)
	}
	return nil
}
