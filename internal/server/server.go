// Package server exposes the task registry, configured jobs, sessions and
// run history as MCP tools.
package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"videobatch.dev/internal/batch"
	"videobatch.dev/internal/config"
	"videobatch.dev/internal/logs"
	"videobatch.dev/internal/store"
	"videobatch.dev/internal/task"
)

// Deps are the collaborators the server exposes
type Deps struct {
	Settings     *config.Settings
	ConfigPath   string // path the settings were loaded from, empty for defaults
	ConfigLoaded bool
	Registry     *task.Registry
	Batch        *batch.Runner
	Sessions     *logs.Manager
	History      *store.Store // optional
}

// Server wraps the MCP server
type Server struct {
	mu           sync.Mutex
	mcpServer    *server.MCPServer
	settings     *config.Settings
	configPath   string
	configLoaded bool
	registry     *task.Registry
	batch        *batch.Runner
	sessions     *logs.Manager
	history      *store.Store
	version      string
}

// NewServer creates a new MCP server and registers its tools and resources
func NewServer(deps Deps, version string) *Server {
	mcpServer := server.NewMCPServer(
		"videobatch",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s := &Server{
		mcpServer:    mcpServer,
		settings:     deps.Settings,
		configPath:   deps.ConfigPath,
		configLoaded: deps.ConfigLoaded,
		registry:     deps.Registry,
		batch:        deps.Batch,
		sessions:     deps.Sessions,
		history:      deps.History,
		version:      version,
	}
	if s.settings == nil {
		s.settings = config.Default()
	}

	if s.sessions != nil {
		ret := logs.SessionRetention{
			MaxSessions: s.settings.Retention.MaxSessions,
			MaxAge:      s.settings.Retention.MaxAge(),
		}
		if _, err := s.sessions.CleanupAllSessions(ret); err != nil {
			log.Warn().Err(err).Msg("session cleanup failed")
		}
	}

	if !s.configLoaded {
		s.registerBuiltInTools()
	}
	s.registerRefreshConfigTool()
	s.registerTools()
	s.registerResources()

	return s
}

// Serve starts the MCP server over stdio
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP serves MCP over StreamableHTTP until ctx is done, then shuts the
// HTTP server down.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcpServer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(addr)
	}()

	log.Info().Str("addr", normalizeAddr(addr)).Msg("videobatch MCP server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// normalizeAddr expands a bare port like ":8080" to "http://localhost:8080".
func normalizeAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		return "http://" + addr
	}
	return addr
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// currentSettings returns the settings in effect, guarded against refresh
func (s *Server) currentSettings() *config.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// mcpJobs returns the jobs visible to MCP clients
func mcpJobs(settings *config.Settings) map[string]config.Job {
	jobs := make(map[string]config.Job, len(settings.Jobs))
	for name, j := range settings.Jobs {
		if j.Disabled || j.DisableMCP {
			continue
		}
		jobs[name] = j
	}
	return jobs
}
