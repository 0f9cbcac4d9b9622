package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default scriptrun data directory name (relative to home).
	DefaultDataDir = ".scriptrun"
	// DBFile is the SQLite database filename of the execution results.
	DBFile = "scriptrun.db"
	// SettingsFile is the engine settings filename looked up in the data directory.
	SettingsFile = "settings.yaml"

	// EnvParamPrefix is the prefix of the environment variables carrying the script parameters.
	EnvParamPrefix = "SCRIPTRUN_PARAM_"
)

// DBPath returns the results database path inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// SettingsPath returns the engine settings path inside a data directory.
func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, SettingsFile)
}
