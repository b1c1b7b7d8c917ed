package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "scrollmode",
		Usage: "A unified scroll-mode feed for the life dashboard",
		Description: `Scrollmode merges the dashboard's content collections (journal,
		media, ratings, articles, garden species, books, profiles) into a
		single shuffled, deduplicated feed served over HTTP.

		Each feed session fetches recent records from every collection,
		normalizes them into one item shape, drops duplicate ids, shuffles
		with an unbiased permutation and releases the result in batches as
		the viewer scrolls. Likes and one-shot achievements are tracked per
		viewer.

		Flags can generally be set via environment variables, e.g.:

		--database => SCROLLMODE_DATABASE=dashboard.db
		--port => SCROLLMODE_PORT=3000
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			shuffleCmd(),
			tidyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
