package pipeline

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/model"
	"github.com/mohammed-shakir/planet-pipeline/internal/orchestrator"
)

// Report summarises one search or run.
type Report struct {
	RunID     string
	Name      string
	SearchID  string
	AuditPath string
	Scenes    int
	Threshold float64
	Days      []model.DayRecord
	Accepted  int
	Outcomes  []orchestrator.Outcome
}

func (r Report) Succeeded() []orchestrator.Outcome {
	return r.filter(func(o orchestrator.Outcome) bool { return o.State == orchestrator.Succeeded })
}

func (r Report) Failed() []orchestrator.Outcome {
	return r.filter(func(o orchestrator.Outcome) bool { return o.State != orchestrator.Succeeded })
}

// OK reports whether every placed order succeeded.
func (r Report) OK() bool { return len(r.Failed()) == 0 }

func (r Report) filter(keep func(orchestrator.Outcome) bool) []orchestrator.Outcome {
	var out []orchestrator.Outcome
	for _, o := range r.Outcomes {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// WriteDays prints the per-day table shown before ordering. Days present in
// accepted are marked for ordering.
func WriteDays(w io.Writer, days, accepted []model.DayRecord) error {
	marked := make(map[string]bool, len(accepted))
	for _, d := range accepted {
		marked[d.Key()] = true
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSCENES\tCOVERAGE\tGAP CELLS\tORDER")
	for _, d := range days {
		mark := ""
		if marked[d.Key()] {
			mark = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f%%\t%d\t%s\n", d.Key(), d.SceneCount, d.CoveragePercent, len(d.GapCells), mark)
	}
	return tw.Flush()
}

// WriteOutcomes prints succeeded and failed days with their reasons.
func WriteOutcomes(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSTATE\tORDER\tATTEMPTS\tDETAIL")
	for _, o := range r.Outcomes {
		detail := fmt.Sprintf("%d files", len(o.Paths))
		if o.Err != nil {
			detail = strings.ReplaceAll(o.Err.Error(), "\n", " ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", o.Key(), o.State, o.OrderID, o.Attempts, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d succeeded, %d failed\n", len(r.Succeeded()), len(r.Failed()))
	return err
}
