package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"videobatch.dev/internal/dirs"
)

const (
	// SessionLogFile holds the execution messages of a session
	SessionLogFile = "session.log"
	// MetadataFile describes a session
	MetadataFile = "metadata.json"
	// MaxLogSize is the maximum size of a session log before rotation (10MB)
	MaxLogSize = 10 * 1024 * 1024
)

// SetupLogger configures the global zerolog logger to write human readable
// output to w at the given level.
func SetupLogger(level string, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if w == nil {
		w = os.Stderr
	}

	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	return nil
}

// Manager owns the session directories below a state directory
type Manager struct {
	root string
}

// NewManager returns a Manager rooted at stateDir
func NewManager(stateDir string) *Manager {
	if stateDir == "" {
		stateDir = dirs.StateDir
	}
	return &Manager{root: stateDir}
}

// Root returns the state directory
func (m *Manager) Root() string {
	return m.root
}

// Setup initializes the state directory structure
// Creates the sessions directory and a .gitignore that ignores everything
func (m *Manager) Setup() error {
	if err := os.MkdirAll(m.sessionsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	gitignorePath := filepath.Join(m.root, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitignorePath, []byte("*\n"), 0644); err != nil {
			return fmt.Errorf("failed to create .gitignore: %w", err)
		}
	}

	return nil
}

func (m *Manager) sessionsDir() string {
	return filepath.Join(m.root, dirs.SessionsDir)
}
