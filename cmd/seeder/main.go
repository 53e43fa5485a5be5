// cmd/seeder/main.go
package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailcampaign-backend/internal/config"
	"github.com/unclebandit/mailcampaign-backend/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	config.ConfigureLogging(cfg.LogLevel)

	if err := db.Migrate(cfg.Database); err != nil {
		logrus.WithError(err).Fatal("Migration failed")
	}

	conn, err := db.Open(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to DB")
	}
	defer conn.Close()

	seedFiles := []string{
		"seed/contacts.sql",
	}
	if len(os.Args) > 1 {
		seedFiles = os.Args[1:]
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			logrus.WithError(err).Fatalf("Failed to read %s", file)
		}
		if _, err := conn.Exec(string(content)); err != nil {
			logrus.WithError(err).Fatalf("Failed to execute %s", file)
		}
		logrus.WithField("file", file).Info("Seeded")
	}

	logrus.Info("Database seeding completed successfully!")
}
