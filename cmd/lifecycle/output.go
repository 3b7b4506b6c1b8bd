package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"lifecycle-agent/internal/application/query/get_snapshot"
	"lifecycle-agent/internal/domain/model"
)

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printReport(rep *model.BatchReport) error {
	if c.jsonOutput {
		return c.printJSON(rep)
	}
	ok, failed := rep.Counts()
	mode := ""
	if rep.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(c.out, "%s %s%s: %s, %d succeeded, %d failed, took %s\n",
		rep.Operation, rep.Scope, mode, rep.Status(), ok, failed,
		rep.Finished.Sub(rep.Started).Round(time.Millisecond))
	if len(rep.Results) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tUNIT\tITEM\tSTATUS\tSIZE\tARTIFACT\tDETAIL")
	for _, r := range rep.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Host, r.Unit, r.ID, r.Status, humanize.Bytes(uint64(max(r.Size, 0))), r.Artifact, r.Detail)
	}
	return w.Flush()
}

func (c *cli) printSnapshots(res interface{}) error {
	snaps, _ := res.([]get_snapshot.UnitSnapshot)
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tUNIT\tCAPTURED\tCONTAINER\tREFERENCE\tIMAGE\tVERSION")
	for _, s := range snaps {
		if s.Record == nil {
			fmt.Fprintf(w, "%s\t%s\t-\t\t\t\t\n", s.Host, s.Unit)
			continue
		}
		captured := humanize.Time(s.Record.CapturedAt)
		for _, img := range s.Record.Images {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				s.Host, s.Unit, captured, img.Container, img.Reference, shortID(img.ImageID), img.VersionLabel)
		}
	}
	return w.Flush()
}

func (c *cli) printStale(res interface{}) error {
	stale, _ := res.([]model.StaleBackup)
	if len(stale) == 0 {
		fmt.Fprintln(c.out, "No stale backups")
		return nil
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tUNIT\tARTIFACT\tLAST BACKUP")
	for _, s := range stale {
		last := "never"
		if !s.LastBackup.IsZero() {
			last = humanize.Time(s.LastBackup)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Host, s.Unit, s.Artifact, last)
	}
	return w.Flush()
}

func shortID(id string) string {
	const n = len("sha256:") + 12
	if len(id) > n {
		return id[:n]
	}
	return id
}
