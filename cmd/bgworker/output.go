package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validFormat(format string) bool {
	switch format {
	case formatText, formatJSON, formatYAML:
		return true
	}
	return false
}

// summary is the result of a workload run.
type summary struct {
	Dispatcher string       `json:"dispatcher" yaml:"dispatcher"`
	Pool       string       `json:"pool" yaml:"pool"`
	Elapsed    string       `json:"elapsed" yaml:"elapsed"`
	Completed  int          `json:"completed" yaml:"completed"`
	Failed     int          `json:"failed" yaml:"failed"`
	Cancelled  int          `json:"cancelled" yaml:"cancelled"`
	Items      int          `json:"items" yaml:"items"`
	Batches    int          `json:"batches" yaml:"batches"`
	Tasks      []taskReport `json:"tasks" yaml:"tasks"`
}

func newSummary(dispatcher, pool string, elapsed time.Duration, reports []taskReport) summary {
	s := summary{
		Dispatcher: dispatcher,
		Pool:       pool,
		Elapsed:    elapsed.Round(time.Millisecond).String(),
		Tasks:      reports,
	}
	for _, r := range reports {
		switch r.State {
		case "completed":
			s.Completed++
		case "cancelled":
			s.Cancelled++
		case "failed":
			s.Failed++
		}
		s.Items += r.Items
		s.Batches += r.Batches
	}
	return s
}

func writeSummary(w io.Writer, format string, s summary) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case formatText:
		return writeSummaryText(w, s)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeSummaryText(w io.Writer, s summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATE\tITEMS\tBATCHES\tPROGRESS\tRESULT\tERROR")
	for _, r := range s.Tasks {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d%%\t%d\t%s\n",
			r.Name, r.State, r.Items, r.Batches, r.Progress, r.Result, r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s on pool %s: %d completed, %d failed, %d cancelled, %d items in %d batches, %s\n",
		s.Dispatcher, s.Pool, s.Completed, s.Failed, s.Cancelled, s.Items, s.Batches, s.Elapsed)
	return err
}
