package config

import "time"

// Settings represents the complete videobatch configuration
type Settings struct {
	Version     string         `yaml:"version"`
	Imports     []string       `yaml:"imports,omitempty"`
	Tools       Tools          `yaml:"tools"`
	Runner      Runner         `yaml:"runner"`
	StateDir    string         `yaml:"state_dir"`
	LogLevel    string         `yaml:"log_level"`
	Parallelism int            `yaml:"parallelism"`
	Retention   Retention      `yaml:"retention"`
	Defaults    Defaults       `yaml:"defaults"`
	Jobs        map[string]Job `yaml:"jobs"`
}

// Tools locates the external media tools
type Tools struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	// Timeout in seconds for a single tool invocation; 0 means none.
	Timeout int `yaml:"timeout"`
}

// Runner tunes the process runner
type Runner struct {
	DrainGrace      int    `yaml:"drain_grace"` // seconds
	KillGrace       int    `yaml:"kill_grace"`  // seconds
	TempDir         string `yaml:"temp_dir"`
	RemoveTempFiles bool   `yaml:"remove_temp_files"`
}

// Retention limits how many sessions are kept on disk
type Retention struct {
	MaxSessions int `yaml:"max_sessions"`
	MaxAgeDays  int `yaml:"max_age_days"`
}

// Defaults represents default values applied to every job
type Defaults struct {
	Timeout     int                    `yaml:"timeout"`
	Parallelism int                    `yaml:"parallelism"`
	Properties  map[string]interface{} `yaml:"properties"`
}

// Job is a named chain of task steps run over a set of inputs
type Job struct {
	Description string                 `yaml:"description"`
	Inputs      []string               `yaml:"inputs"` // glob patterns
	OutputDir   string                 `yaml:"output_dir"`
	Timeout     int                    `yaml:"timeout"` // seconds per input
	Parallelism int                    `yaml:"parallelism"`
	Properties  map[string]interface{} `yaml:"properties"`
	Steps       []JobStep              `yaml:"steps"`
	Disabled    bool                   `yaml:"disabled,omitempty"`
	DisableMCP  bool                   `yaml:"disable_mcp,omitempty"`
}

// JobStep represents a single step in a job
type JobStep struct {
	Task              string                 `yaml:"task"`
	Properties        map[string]interface{} `yaml:"properties"`
	ContinueOnFailure bool                   `yaml:"continue_on_failure"`
}

// Overrides holds local, uncommitted visibility overrides keyed by job name
// or glob pattern.
type Overrides struct {
	Jobs map[string]JobOverride `yaml:"jobs"`
}

// JobOverride toggles a job off entirely or just hides it from MCP clients
type JobOverride struct {
	Disabled   bool `yaml:"disabled"`
	DisableMCP bool `yaml:"disable_mcp"`
}

// ToolTimeout returns the per-invocation tool timeout
func (s *Settings) ToolTimeout() time.Duration {
	return time.Duration(s.Tools.Timeout) * time.Second
}

// DrainGrace returns the runner drain grace, or 0 for the runner default
func (s *Settings) DrainGrace() time.Duration {
	return time.Duration(s.Runner.DrainGrace) * time.Second
}

// KillGrace returns the runner kill grace, or 0 for the runner default
func (s *Settings) KillGrace() time.Duration {
	return time.Duration(s.Runner.KillGrace) * time.Second
}

// MaxAge returns the session retention age
func (r Retention) MaxAge() time.Duration {
	return time.Duration(r.MaxAgeDays) * 24 * time.Hour
}

// JobTimeout returns the per-input timeout of a job
func (j Job) JobTimeout() time.Duration {
	return time.Duration(j.Timeout) * time.Second
}
