package logs

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionRetention defines retention policies for session cleanup
type SessionRetention struct {
	MaxSessions int           // Maximum number of sessions to keep per name (0 = unlimited)
	MaxAge      time.Duration // Maximum age of sessions to keep (0 = unlimited)
}

// DefaultRetention provides default retention policy
var DefaultRetention = SessionRetention{
	MaxSessions: 100,
	MaxAge:      7 * 24 * time.Hour,
}

// CleanupOldSessions removes old sessions of one task or job according to
// the retention policy. Returns the number of sessions deleted.
func (m *Manager) CleanupOldSessions(name string, retention SessionRetention) (int, error) {
	sessions, err := m.ListSessions(name, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		return 0, nil
	}

	// oldest first
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})

	toDelete := make(map[string]bool)
	now := time.Now()

	if retention.MaxAge > 0 {
		for _, session := range sessions {
			if now.Sub(session.StartTime) > retention.MaxAge {
				toDelete[session.SessionID] = true
			}
		}
	}

	if retention.MaxSessions > 0 && len(sessions) > retention.MaxSessions {
		for _, session := range sessions[:len(sessions)-retention.MaxSessions] {
			toDelete[session.SessionID] = true
		}
	}

	deleted := 0
	for _, session := range sessions {
		if !toDelete[session.SessionID] {
			continue
		}
		if err := os.RemoveAll(m.SessionDirectory(session.SessionID)); err != nil {
			log.Warn().Err(err).Str("session", session.SessionID).Msg("failed to delete session")
			continue
		}
		deleted++
	}

	return deleted, nil
}

// CleanupAllSessions applies the retention policy to every task and job
func (m *Manager) CleanupAllSessions(retention SessionRetention) (int, error) {
	sessions, err := m.ListSessions("", 0)
	if err != nil {
		return 0, err
	}

	names := make(map[string]bool)
	for _, session := range sessions {
		names[session.Name] = true
	}

	total := 0
	for name := range names {
		deleted, err := m.CleanupOldSessions(name, retention)
		if err != nil {
			log.Warn().Err(err).Str("name", name).Msg("failed to clean up sessions")
		}
		total += deleted
	}

	return total, nil
}
