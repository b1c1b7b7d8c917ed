package cmd

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"scrollmode/config"
	"scrollmode/db"
	"scrollmode/feed"
	"scrollmode/models"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func shuffleCmd() *cli.Command {
	return &cli.Command{
		Name:  "shuffle",
		Usage: "Print one shuffled feed snapshot to the command line",
		Description: `Builds one merged, deduplicated, shuffled feed snapshot from the
configured content collections and prints it to stdout.

Returns each feed item as a JSON object on a single line. Use a tool like jq
to process the output.

Prints all other log messages to stderr.`,
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
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Shuffle seed, for reproducible output",
			},
		},
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			cfg := config.DefaultConfig()
			if path := ctx.String("config"); path != "" {
				loaded, err := config.LoadConfig(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			content, err := db.NewContentStore(ctx.String("database"))
			if err != nil {
				return err
			}
			defer content.Close()

			opts := cfg.FeedOptions()
			if len(opts.Collections) == 0 {
				opts.Collections = models.SourceTypes
			}
			if opts.PerSourceLimit <= 0 {
				opts.PerSourceLimit = 50
			}

			seed := ctx.Int64("seed")
			if !ctx.IsSet("seed") {
				seed = time.Now().UnixNano()
			}
			rng := rand.New(rand.NewSource(seed))

			// Sequential fetch is fine for a one-shot dump
			batches := make([][]models.FeedItem, 0, len(opts.Collections))
			for _, tag := range opts.Collections {
				records, err := content.ListRecent(ctx.Context, tag, opts.PerSourceLimit)
				if err != nil {
					return fmt.Errorf("fetch %s: %w", tag, err)
				}
				batches = append(batches, feed.Normalize(records))
			}

			shuffled := feed.Shuffle(feed.Merge(batches...), rng)

			log.WithFields(log.Fields{
				"items": len(shuffled),
				"seed":  seed,
			}).Info("Built feed snapshot")

			for _, item := range shuffled {
				printStdout(&item)
			}

			return nil
		},
	}
}

func printStdout(item *models.FeedItem) {
	// Print as single JSON string on a single line

	// Convert FeedItem to JSON string
	itemJson, err := json.Marshal(item)
	if err == nil {
		fmt.Println(string(itemJson))
	}
}
