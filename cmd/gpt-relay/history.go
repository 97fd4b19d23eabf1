package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gpt-relay/internal/session"

	"github.com/mattn/go-runewidth"
)

const promptColumnWidth = 40

func historyMain(root rootArgs, args []string) {
	if err := runHistory(args, os.Stdout); err != nil {
		log.Fatalf("history: %v", err)
	}
}

// runHistory lists archived relays, or prints one with "show <id>".
func runHistory(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("n", 10, "Number of relays to list (0 lists all)")
	dir := fs.String("dir", "", "Transcript directory (default ~/.gpt-relay/transcripts)")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store := session.NewStore(*dir)

	rest := fs.Args()
	if len(rest) > 0 && rest[0] == "show" {
		if len(rest) < 2 {
			return errors.New("usage: gpt-relay history show <id>")
		}
		rec, err := store.Load(rest[1])
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(out, rec)
		}
		fmt.Fprintf(out, "%s  %s  %s  %d page(s)\n", rec.ID, rec.Model, rec.Status, rec.Pages)
		if rec.Failure != "" {
			fmt.Fprintf(out, "failure: %s\n", rec.Failure)
		}
		fmt.Fprintf(out, "prompt: %s\n\n%s\n", rec.Prompt, rec.Text)
		return nil
	}

	records, err := store.List(*limit)
	if err != nil {
		return err
	}
	if *asJSON {
		if records == nil {
			records = []session.Record{}
		}
		return writeJSON(out, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no archived relays")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPAGES\tMODEL\tUPDATED\tPROMPT")
	for _, rec := range records {
		prompt := strings.Join(strings.Fields(rec.Prompt), " ")
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.ID, rec.Status, rec.Pages, rec.Model,
			rec.Updated.Local().Format("2006-01-02 15:04"),
			runewidth.Truncate(prompt, promptColumnWidth, "…"),
		)
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
