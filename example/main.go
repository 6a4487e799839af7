package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emontero/telesync"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	// Zero-config persistence: credentials land in telesync.db (SQLite).
	// For a shared session across processes, use store.NewRedisFromConfig
	// or store.NewMySQLFromDSN and pass the result as Config.Credentials.
	client, err := telesync.New(telesync.Config{
		BaseURL: envOr("TELESYNC_API", "http://localhost:8000/api/v1"),
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("Failed to initialize client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	// A previous run's session survives in the store; only log in when
	// no session was restored.
	if !client.IsAuthenticated() {
		email := envOr("TELESYNC_EMAIL", "admin@example.com")
		password := os.Getenv("TELESYNC_PASSWORD")
		if err := client.Login(ctx, email, password); err != nil {
			log.Fatalf("Login failed: %v", err)
		}
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch current user: %v", err)
	}
	fmt.Printf("Logged in as %s %s (%s)\n", user.FirstName, user.LastName, user.Role)

	devices, err := client.Devices(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch devices: %v", err)
	}

	now := time.Now()
	fmt.Printf("\n%d devices:\n", len(devices.Value))
	for _, d := range devices.Value {
		fmt.Printf("  %-24s %-10s %s\n", d.Name, d.Status, client.Connectivity(d, now))
	}

	summary, err := client.Summary(ctx)
	if err != nil {
		log.Fatalf("Failed to compute summary: %v", err)
	}
	fmt.Printf("\nFleet: %d total, %d online, %d offline, %d in maintenance\n",
		summary.Value.Total, summary.Value.Online, summary.Value.Offline, summary.Value.Maintenance)

	if len(devices.Value) > 0 {
		first := devices.Value[0]
		readings, err := client.Readings(ctx, first.ID, telesync.Window24h)
		if err != nil {
			log.Fatalf("Failed to fetch readings: %v", err)
		}

		good := 0
		for _, r := range readings.Value {
			if client.GoodQuality(r) {
				good++
			}
		}
		fmt.Printf("\n%s: %d readings in the last 24h, %d good quality\n",
			first.Name, len(readings.Value), good)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
