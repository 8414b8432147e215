package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Snapshot is the on-disk record of the relay bank, written on every
// transition and read back once at startup so the board powers up into the
// state it was left in.
type Snapshot struct {
	Relays  []bool    `json:"relays"`
	SavedAt time.Time `json:"saved_at"`
}

type Store struct {
	path   string
	logger *zap.Logger
}

func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: zap.L(),
	}
}

func (s *Store) Save(states []bool) error {
	data, err := json.Marshal(Snapshot{Relays: states, SavedAt: time.Now()})
	if err != nil {
		return err
	}
	// Write-and-rename so a power cut mid-write cannot corrupt the snapshot.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load returns the saved relay states, or nil when no usable snapshot exists.
// A corrupt snapshot is logged and discarded rather than failing startup.
func (s *Store) Load() []bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read relay snapshot", zap.Error(err), zap.String("path", s.path))
		}
		return nil
	}
	snapshot := Snapshot{}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.logger.Warn("discarding corrupt relay snapshot", zap.Error(err), zap.String("path", s.path))
		return nil
	}
	return snapshot.Relays
}

// Path returns the absolute snapshot location for diagnostics.
func (s *Store) Path() string {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return s.path
	}
	return abs
}
