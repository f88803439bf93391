package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/oddjobs/oj/internal/ojerr"
)

// SupportedSchemaVersion is the materialised-state schema version this
// binary understands. Bump it (and add a migration) whenever state.State's
// shape changes in a way old snapshots can't unmarshal directly.
const SupportedSchemaVersion = 1

// SnapshotEnvelope is the on-disk shape from spec.md §6: "{v, seq, state,
// created_at}".
type SnapshotEnvelope struct {
	V         int             `json:"v"`
	Seq       uint64          `json:"seq"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

func snapshotPath(stateDir string) string {
	return filepath.Join(stateDir, "snapshot.json")
}

// WriteSnapshot serialises state to JSON, compresses it with zstd, and
// writes it atomically (temp file + rename) to snapshot.json.
func WriteSnapshot(stateDir string, seq uint64, state interface{}, now time.Time) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("eventlog: marshal snapshot state: %w", err)
	}
	env := SnapshotEnvelope{V: SupportedSchemaVersion, Seq: seq, State: raw, CreatedAt: now}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("eventlog: marshal snapshot envelope: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("eventlog: zstd writer: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(data, nil)

	final := snapshotPath(stateDir)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("eventlog: write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("eventlog: rename snapshot into place: %w", err)
	}
	return nil
}

// migrations maps a snapshot schema version to the function that upgrades
// its raw decoded top-level map to the next version. Each migration works
// over map[string]json.RawMessage so old snapshot shapes don't need the
// current Go struct to parse losslessly (SPEC_FULL.md §6.2).
var migrations = map[int]func(map[string]json.RawMessage) (map[string]json.RawMessage, error){
	// No migrations yet: SupportedSchemaVersion has only ever been 1.
}

// LoadSnapshot reads snapshot.json if present, applying forward migrations
// as needed, and returns the decoded seq plus the raw (already-migrated)
// state bytes for the caller to unmarshal into state.State. Returns
// (0, nil, nil) if no snapshot file exists yet — an empty state at seq 0.
func LoadSnapshot(stateDir string) (uint64, json.RawMessage, error) {
	path := snapshotPath(stateDir)
	compressed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, nil
		}
		return 0, nil, fmt.Errorf("eventlog: read snapshot: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return 0, nil, fmt.Errorf("eventlog: zstd reader: %w", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("eventlog: zstd decode: %w", err)
	}

	var env SnapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, nil, fmt.Errorf("eventlog: unmarshal snapshot envelope: %w", err)
	}

	if env.V > SupportedSchemaVersion {
		return 0, nil, ojerr.New(ojerr.MigrationTooNew,
			fmt.Sprintf("snapshot schema v%d is newer than supported v%d", env.V, SupportedSchemaVersion))
	}

	state := env.State
	for v := env.V; v < SupportedSchemaVersion; v++ {
		migrate, ok := migrations[v]
		if !ok {
			return 0, nil, fmt.Errorf("eventlog: no migration registered from v%d", v)
		}
		var top map[string]json.RawMessage
		if err := json.Unmarshal(state, &top); err != nil {
			return 0, nil, fmt.Errorf("eventlog: decode snapshot v%d for migration: %w", v, err)
		}
		migrated, err := migrate(top)
		if err != nil {
			return 0, nil, fmt.Errorf("eventlog: migrate v%d->v%d: %w", v, v+1, err)
		}
		state, err = json.Marshal(migrated)
		if err != nil {
			return 0, nil, fmt.Errorf("eventlog: re-encode migrated snapshot: %w", err)
		}
	}

	return env.Seq, state, nil
}

// Snapshotter decides, after each Append, whether it's time to rotate a
// new snapshot: every SnapshotEveryEvents appended persisted events OR
// SnapshotEveryDuration, whichever comes first (SPEC_FULL.md §6.2).
type Snapshotter struct {
	everyEvents    int
	everyDuration  time.Duration
	eventsSince    int
	lastSnapshotAt time.Time
}

func NewSnapshotter(everyEvents int, everyDuration time.Duration, now time.Time) *Snapshotter {
	return &Snapshotter{everyEvents: everyEvents, everyDuration: everyDuration, lastSnapshotAt: now}
}

// ShouldSnapshot records n newly appended persisted events and reports
// whether a snapshot should be taken now.
func (s *Snapshotter) ShouldSnapshot(n int, now time.Time) bool {
	s.eventsSince += n
	if s.everyEvents > 0 && s.eventsSince >= s.everyEvents {
		return true
	}
	if s.everyDuration > 0 && now.Sub(s.lastSnapshotAt) >= s.everyDuration {
		return true
	}
	return false
}

// MarkSnapshotted resets the counters after a snapshot has been written.
func (s *Snapshotter) MarkSnapshotted(now time.Time) {
	s.eventsSince = 0
	s.lastSnapshotAt = now
}
