package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/warden/internal/breaker"
)

// SaveBreakerSnapshots replaces all persisted breaker state with the given
// snapshots. The write is transactional so a checkpoint never records a
// partial view of the breaker set.
func (db *DB) SaveBreakerSnapshots(snaps []breaker.Snapshot) error {
	now := formatTime(time.Now())

	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM breaker_states"); err != nil {
			return fmt.Errorf("clear breaker states: %w", err)
		}
		for _, s := range snaps {
			var openedAt *string
			if !s.OpenedAt.IsZero() {
				v := formatTime(s.OpenedAt)
				openedAt = &v
			}
			_, err := tx.Exec(`
				INSERT INTO breaker_states (actor, scope, state, failure_count, opened_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, s.Key.Actor, s.Key.Scope, string(s.State), s.FailureCount, openedAt, now)
			if err != nil {
				return fmt.Errorf("save breaker state %s/%s: %w", s.Key.Actor, s.Key.Scope, err)
			}
		}
		return nil
	})
}

// LoadBreakerSnapshots loads all persisted breaker state.
func (db *DB) LoadBreakerSnapshots() ([]breaker.Snapshot, error) {
	rows, err := db.Query(`
		SELECT actor, scope, state, failure_count, opened_at
		FROM breaker_states
	`)
	if err != nil {
		return nil, fmt.Errorf("load breaker states: %w", err)
	}
	defer rows.Close()

	var snaps []breaker.Snapshot
	for rows.Next() {
		var s breaker.Snapshot
		var state string
		var openedAt sql.NullString
		if err := rows.Scan(&s.Key.Actor, &s.Key.Scope, &state, &s.FailureCount, &openedAt); err != nil {
			return nil, fmt.Errorf("scan breaker state: %w", err)
		}
		s.State = breaker.State(state)
		if t := parseNullableTime(openedAt); t != nil {
			s.OpenedAt = *t
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}
