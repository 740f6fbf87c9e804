package dirs

// StateDir is the default root directory for videobatch runtime state
// (sessions, run history), relative to the working directory.
const StateDir = ".videobatch_state"

// ConfigDir is the hidden directory a settings file may live in,
// relative to the working directory.
const ConfigDir = ".videobatch"

// SettingsFile is the settings file name looked up in the working directory.
const SettingsFile = "videobatch.yaml"

// OverridesFile is the path to the optional local overrides file,
// relative to the working directory.
const OverridesFile = ".videobatch.overrides.yaml"

// HistoryDB is the run history database file inside the state directory.
const HistoryDB = "history.db"

// SessionsDir is the sessions directory inside the state directory.
const SessionsDir = "sessions"
