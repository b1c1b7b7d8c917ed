package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"scrollmode/config"
	"scrollmode/db"
	"scrollmode/server"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the scroll-mode feed",
		Description: `Starts the scroll-mode feed HTTP server.

Feed sessions are opened via the HTTP API: each open fetches recent records
from the configured content collections, merges and shuffles them, and
releases batches as the client scrolls. Run the migrate command first to
create the database schema.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "dashboard.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"SCROLLMODE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to feed configuration file",
				EnvVars: []string{"SCROLLMODE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "hostname",
				Usage:   "The hostname where the server is running",
				EnvVars: []string{"SCROLLMODE_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "The port to listen on",
				EnvVars: []string{"SCROLLMODE_PORT"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")

			cfg := config.DefaultConfig()
			if path := ctx.String("config"); path != "" {
				loaded, err := config.LoadConfig(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			hostname := cfg.Server.Hostname
			if ctx.String("hostname") != "" {
				hostname = ctx.String("hostname")
			}
			port := cfg.Server.Port
			if ctx.IsSet("port") || port == 0 {
				port = ctx.Int("port")
			}

			content, err := db.NewContentStore(database)
			if err != nil {
				return fmt.Errorf("did you run migrate? %w", err)
			}
			defer content.Close()

			// Wait for the database to become reachable before serving
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 100 * time.Millisecond
			bo.MaxInterval = 5 * time.Second
			bo.MaxElapsedTime = 30 * time.Second
			if err := backoff.Retry(func() error {
				return content.Ping(ctx.Context)
			}, bo); err != nil {
				return fmt.Errorf("database not reachable: %w", err)
			}

			voteStore, err := db.NewVoteStore(database)
			if err != nil {
				return err
			}
			defer voteStore.Close()

			eventStore, err := db.NewEventStore(database)
			if err != nil {
				return err
			}
			defer eventStore.Close()

			bc := server.NewBroadcaster()

			feedOpts := cfg.FeedOptions()
			app := server.Server(&server.ServerConfig{
				Hostname:    hostname,
				Sources:     content,
				Votes:       voteStore,
				Events:      eventStore,
				Feed:        feedOpts,
				Broadcaster: bc,
			})

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			done := make(chan struct{})

			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Error("Error shutting down server", err)
				}
				bc.Shutdown()
				close(done)
			}()

			log.WithFields(log.Fields{
				"hostname":    hostname,
				"port":        port,
				"collections": len(feedOpts.Collections),
			}).Info("Starting scrollmode server")

			if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
				return err
			}

			<-done
			fmt.Println("Done!")
			return nil
		},
	}
}
