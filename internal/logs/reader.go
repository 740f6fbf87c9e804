package logs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// ReadOptions contains options for reading session logs
type ReadOptions struct {
	Lines  int    // Number of lines to tail (0 means all)
	Filter string // Regex pattern to filter lines (empty means no filter)
	Offset int    // Skip the last N lines before tailing (for paging backwards)
	File   string // File inside the session directory (empty means the message log)
}

// ReadLog reads a file of a session with optional filtering, paging and
// tailing. It also returns the number of lines after filtering. A session
// without the file yields no lines.
func (m *Manager) ReadLog(sessionID string, opts ReadOptions) ([]string, int, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) {
		return nil, 0, fmt.Errorf("invalid session id %q", sessionID)
	}
	if _, err := os.Stat(m.SessionDirectory(sessionID)); err != nil {
		return nil, 0, fmt.Errorf("session %s not found", sessionID)
	}

	name := opts.File
	if name == "" {
		name = SessionLogFile
	}
	if name != filepath.Base(name) {
		return nil, 0, fmt.Errorf("invalid log file name %q", name)
	}

	logPath := filepath.Join(m.SessionDirectory(sessionID), name)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return []string{}, 0, nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	lines := []string{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read log file: %w", err)
	}

	if opts.Filter != "" {
		lines, err = filterLines(lines, opts.Filter)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to filter lines: %w", err)
		}
	}

	total := len(lines)

	if opts.Offset > 0 {
		if opts.Offset >= len(lines) {
			lines = []string{}
		} else {
			lines = lines[:len(lines)-opts.Offset]
		}
	}

	if opts.Lines > 0 && len(lines) > opts.Lines {
		lines = lines[len(lines)-opts.Lines:]
	}

	return lines, total, nil
}

// ReadLatest reads the most recent session of a task or job
func (m *Manager) ReadLatest(name string, opts ReadOptions) (string, []string, error) {
	sessionID, err := m.LatestSessionID(name)
	if err != nil {
		return "", nil, fmt.Errorf("no sessions for %s: %w", name, err)
	}
	lines, _, err := m.ReadLog(sessionID, opts)
	return sessionID, lines, err
}

// Files lists the files of a session, e.g. the tee logs of each tool run
func (m *Manager) Files(sessionID string) ([]string, error) {
	entries, err := os.ReadDir(m.SessionDirectory(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// filterLines filters lines using a regex pattern
func filterLines(lines []string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	filtered := []string{}
	for _, line := range lines {
		if re.MatchString(line) {
			filtered = append(filtered, line)
		}
	}

	return filtered, nil
}
