package logs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session kinds
const (
	KindTask = "task"
	KindJob  = "job"
	KindExec = "exec"
)

// SessionMetadata holds metadata about one pipeline run
type SessionMetadata struct {
	SessionID  string                 `json:"session_id"`
	Name       string                 `json:"name"` // task or job name
	Kind       string                 `json:"kind"`
	Input      string                 `json:"input,omitempty"`
	Output     string                 `json:"output,omitempty"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    *time.Time             `json:"end_time,omitempty"`
	Duration   *time.Duration         `json:"duration,omitempty"`
	Success    *bool                  `json:"success,omitempty"`
	Messages   int                    `json:"messages"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// SessionInfo holds basic information about a session
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	StartTime time.Time `json:"start_time"`
	Success   *bool     `json:"success,omitempty"`
	Dir       string    `json:"dir"`
}

// GenerateSessionID generates a new UUID for a session
func GenerateSessionID() string {
	return uuid.New().String()
}

// SessionDirectory returns the directory path for a session
func (m *Manager) SessionDirectory(sessionID string) string {
	return filepath.Join(m.sessionsDir(), sessionID)
}

// SessionLogPath returns the path to the message log of a session
func (m *Manager) SessionLogPath(sessionID string) string {
	return filepath.Join(m.SessionDirectory(sessionID), SessionLogFile)
}

func (m *Manager) metadataPath(sessionID string) string {
	return filepath.Join(m.SessionDirectory(sessionID), MetadataFile)
}

func (m *Manager) latestLinkPath(name string) string {
	return filepath.Join(m.root, "latest", linkName(name))
}

// linkName turns a task or job name into a file name
func linkName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}

// Start creates a session directory, writes its initial metadata and points
// the latest link for meta.Name at it. meta.SessionID and meta.StartTime are
// filled in when empty.
func (m *Manager) Start(meta *SessionMetadata) (string, error) {
	if meta.SessionID == "" {
		meta.SessionID = GenerateSessionID()
	}
	if meta.StartTime.IsZero() {
		meta.StartTime = time.Now()
	}

	dir := m.SessionDirectory(meta.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := m.WriteMetadata(meta); err != nil {
		return "", err
	}
	if meta.Name != "" {
		if err := m.createLatestLink(meta.Name, meta.SessionID); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// Finish records the outcome of a session and writes its messages to the
// session log.
func (m *Manager) Finish(sessionID string, success bool, output string, messages []string) error {
	meta, err := m.ReadMetadata(sessionID)
	if err != nil {
		return err
	}

	w, err := NewWriter(m.SessionLogPath(sessionID))
	if err != nil {
		return err
	}
	if err := w.WriteLines(messages); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	end := time.Now()
	duration := end.Sub(meta.StartTime)
	meta.EndTime = &end
	meta.Duration = &duration
	meta.Success = &success
	meta.Output = output
	meta.Messages = len(messages)
	return m.WriteMetadata(meta)
}

// WriteMetadata writes session metadata to a JSON file
func (m *Manager) WriteMetadata(meta *SessionMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(m.metadataPath(meta.SessionID), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// ReadMetadata reads session metadata from a JSON file
func (m *Manager) ReadMetadata(sessionID string) (*SessionMetadata, error) {
	data, err := os.ReadFile(m.metadataPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// LatestSessionID resolves the latest session ID for a task or job by
// reading its symlink
func (m *Manager) LatestSessionID(name string) (string, error) {
	target, err := os.Readlink(m.latestLinkPath(name))
	if err != nil {
		return "", fmt.Errorf("failed to read latest symlink: %w", err)
	}

	// Target format: ../sessions/<uuid>
	return filepath.Base(target), nil
}

func (m *Manager) createLatestLink(name, sessionID string) error {
	symlinkPath := m.latestLinkPath(name)
	targetPath := filepath.Join("..", filepath.Base(m.sessionsDir()), sessionID)

	if err := os.MkdirAll(filepath.Dir(symlinkPath), 0755); err != nil {
		return fmt.Errorf("failed to create latest directory: %w", err)
	}

	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			return fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}

	if err := os.Symlink(targetPath, symlinkPath); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}

	return nil
}

// ListSessions lists recent sessions, newest first. An empty name lists
// sessions of every task and job.
func (m *Manager) ListSessions(name string, limit int) ([]SessionInfo, error) {
	entries, err := os.ReadDir(m.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []SessionInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	sessions := []SessionInfo{}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := m.ReadMetadata(entry.Name())
		if err != nil {
			// Skip sessions with missing or invalid metadata
			continue
		}

		if name != "" && meta.Name != name {
			continue
		}

		sessions = append(sessions, SessionInfo{
			SessionID: meta.SessionID,
			Name:      meta.Name,
			Kind:      meta.Kind,
			StartTime: meta.StartTime,
			Success:   meta.Success,
			Dir:       m.SessionDirectory(entry.Name()),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	return sessions, nil
}
