package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/axle/pkg/journal"
)

func newJournalCommand() *Command {
	return &Command{
		Name:        "journal",
		Description: "Show recent plugin lifecycle events",
		Run:         runJournal,
	}
}

func runJournal(args []string) error {
	flags := flag.NewFlagSet("journal", flag.ContinueOnError)
	flags.SetOutput(stderr)
	dsn := flags.String("dsn", os.Getenv("AXLE_JOURNAL_DSN"), "Journal database (postgres:// URL or SQLite path)")
	limit := flags.Int("limit", 20, "Maximum number of entries to show")
	plugin := flags.String("plugin", "", "Only show entries for this plugin")
	failures := flags.Bool("failures", false, "Only show failed events")
	output := flags.String("output", outputText, "Output format (text, json, yaml)")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := checkOutputFormat(*output); err != nil {
		return err
	}
	if *dsn == "" {
		return errors.New("a journal DSN is required (-dsn or AXLE_JOURNAL_DSN)")
	}

	j, err := journal.Open(*dsn)
	if err != nil {
		return err
	}
	defer j.Close()

	filter := journal.Filter{Plugin: *plugin, Limit: *limit}
	if *failures {
		filter.Status = journal.StatusFailure
	}

	entries, err := j.Recent(context.Background(), filter)
	if err != nil {
		return err
	}

	return writeOutput(stdout, *output, entries, func(w io.Writer) error {
		return writeJournalTable(w, entries)
	})
}

func writeJournalTable(out io.Writer, entries []*journal.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No journal entries")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tSTATUS\tPLUGIN\tVERSION\tDURATION\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime),
			e.EventType, e.Status, valueOr(e.Plugin, "-"), valueOr(e.Version, "-"),
			e.Duration.Round(time.Microsecond), e.Error)
	}
	return w.Flush()
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
