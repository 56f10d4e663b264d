package config

import (
	"os"
	"strings"
)

// Configuration is the process-wide, explicitly-initialized config
// singleton, read once at startup from the environment inputs
// enumerated in spec.md §6. No config file — unlike the teacher's
// JSON-file-backed Configuration, the environment is the source of
// truth here. Only PORT, DATABASE_URL, COORD_URL and AUTH_SECRET are
// read.
type Configuration struct {
	Port string

	DatabaseURL string
	CoordURL    string

	AuthSecret string
}

// Get reads and defaults the Configuration: every variable that is
// empty or unset takes its default, so Get never fails.
func Get() Configuration {
	c := Configuration{
		Port:        getenv("PORT", "8080"),
		DatabaseURL: getenv("DATABASE_URL", "sqlite3://db/database.db"),
		CoordURL:    getenv("COORD_URL", "redis://127.0.0.1:6379/0"),
		AuthSecret:  getenv("AUTH_SECRET", "CHANGE_ME"),
	}
	return c
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
