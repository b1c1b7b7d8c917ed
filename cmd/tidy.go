package cmd

import (
	"fmt"
	"time"

	"scrollmode/db"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the event log",
		Description: `Tidy up the database by removing old event rows.

		Removes logged events older than the retention window to keep the
		database size down. Achievement events are kept regardless of age
		so one-shot achievements never re-fire.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "dashboard.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"SCROLLMODE_DATABASE"},
			},
			&cli.IntFlag{
				Name:  "days",
				Value: 90,
				Usage: "Event retention in days",
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			days := ctx.Int("days")

			choice, err := prompt.New().
				Ask(fmt.Sprintf("Delete events older than %d days from %s?", days, database)).
				Choose([]string{"Yes", "No"})
			if err != nil {
				return err
			}
			if choice != "Yes" {
				fmt.Println("Aborted")
				return nil
			}

			removed, err := db.Tidy(database, time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}

			fmt.Printf("Removed %d event rows\n", removed)
			return nil
		},
	}
}
