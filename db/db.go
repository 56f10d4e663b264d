package db

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/penelope/inbox/config"
	"github.com/penelope/inbox/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

var conf config.Configuration

func SetConfigurations(configuration config.Configuration) {
	conf = configuration
}

// Connect opens the persistence store connection described by
// DATABASE_URL and runs AutoMigrate for the core tables (§3). The
// dialect switch itself is the teacher's db.Connect shape generalized
// from two hardcoded branches keyed on conf.Database to one branch
// keyed on the DSN's scheme.
func Connect() (*gorm.DB, error) {
	dsn := conf.DatabaseURL
	if dsn == "" {
		dsn = "sqlite3://db/database.db"
	}

	var (
		database *gorm.DB
		err      error
	)

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		log.Println("connecting to postgres persistence store...")
		database, err = gorm.Open("postgres", dsn)
	case strings.HasPrefix(dsn, "sqlite3://"):
		path := strings.TrimPrefix(dsn, "sqlite3://")
		log.Println("connecting to sqlite3 persistence store at " + path)
		database, err = gorm.Open("sqlite3", path)
	default:
		return nil, fmt.Errorf("db: unsupported DATABASE_URL scheme in %q", dsn)
	}

	if err != nil {
		log.Println("db: connect error: " + err.Error())
		return nil, err
	}

	database.LogMode(getenv("DB_LOG", "0") == "1")

	if err := database.AutoMigrate(
		&models.Organization{},
		&models.Agent{},
		&models.Channel{},
		&models.Contact{},
		&models.Conversation{},
		&models.Message{},
		&models.ConversationEvent{},
		&models.AgentSession{},
	).Error; err != nil {
		return nil, fmt.Errorf("db: automigrate: %w", err)
	}

	return database, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
