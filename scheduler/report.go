package scheduler

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/relloyd/odsync/config"
)

// RunReport is the outcome of one DAG run.
type RunReport struct {
	RunID     string      `json:"runId"`
	Mode      string      `json:"mode"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime"`
	Levels    [][]string  `json:"levels"`
	Nodes     []TableNode `json:"nodes"`
}

// TierCount holds the outcomes of one priority tier.
type TierCount struct {
	Priority config.Priority `json:"priority"`
	Success  int             `json:"success"`
	Failed   int             `json:"failed"`
	Skipped  int             `json:"skipped"`
}

// Snapshot copies the nodes in level order.
func (g *Graph) Snapshot() []TableNode {
	retval := make([]TableNode, 0, len(g.nodes))
	for _, level := range g.levels {
		for _, n := range level {
			c := *n
			c.Dependencies = append([]string{}, n.Dependencies...)
			retval = append(retval, c)
		}
	}
	return retval
}

func (r *RunReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

func (r *RunReport) Counts() (success, failed, skipped int) {
	for _, n := range r.Nodes {
		switch n.Status {
		case StatusSuccess:
			success++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// HasFailures decides the exit code of a DAG run.
func (r *RunReport) HasFailures() bool {
	_, failed, _ := r.Counts()
	return failed > 0
}

// SuccessRate is the percentage of successful tables.
func (r *RunReport) SuccessRate() float64 {
	if len(r.Nodes) == 0 {
		return 0
	}
	success, _, _ := r.Counts()
	return float64(success) / float64(len(r.Nodes)) * 100
}

// Tiers returns the counts per priority, critical first. Tiers without tables are omitted.
func (r *RunReport) Tiers() []TierCount {
	m := make(map[config.Priority]*TierCount)
	for _, n := range r.Nodes {
		t, ok := m[n.Priority]
		if !ok {
			t = &TierCount{Priority: n.Priority}
			m[n.Priority] = t
		}
		switch n.Status {
		case StatusSuccess:
			t.Success++
		case StatusFailed:
			t.Failed++
		case StatusSkipped:
			t.Skipped++
		}
	}
	retval := make([]TierCount, 0, len(m))
	for _, t := range m {
		retval = append(retval, *t)
	}
	sort.Slice(retval, func(i, j int) bool { return retval[i].Priority.Rank() < retval[j].Priority.Rank() })
	return retval
}

// Slowest returns up to n tables that ran, longest first.
func (r *RunReport) Slowest(n int) []TableNode {
	ran := make([]TableNode, 0, len(r.Nodes))
	for _, node := range r.Nodes {
		if node.Duration() > 0 {
			ran = append(ran, node)
		}
	}
	sort.SliceStable(ran, func(i, j int) bool { return ran[i].Duration() > ran[j].Duration() })
	if len(ran) > n {
		ran = ran[:n]
	}
	return ran
}

func (r *RunReport) Failed() []TableNode {
	var retval []TableNode
	for _, n := range r.Nodes {
		if n.Status == StatusFailed {
			retval = append(retval, n)
		}
	}
	return retval
}

// WriteSummary prints the console summary of the run.
func (r *RunReport) WriteSummary(w io.Writer) error {
	success, failed, skipped := r.Counts()
	b := &strings.Builder{}
	line := strings.Repeat("=", 80)
	fmt.Fprintln(b, line)
	fmt.Fprintf(b, "DAG RUN %v (%v)\n", r.RunID, r.Mode)
	fmt.Fprintln(b, line)
	fmt.Fprintf(b, "Tables:    %d\n", len(r.Nodes))
	fmt.Fprintf(b, "Success:   %d\n", success)
	fmt.Fprintf(b, "Failed:    %d\n", failed)
	fmt.Fprintf(b, "Skipped:   %d\n", skipped)
	fmt.Fprintf(b, "Success rate: %.1f%%\n", r.SuccessRate())
	fmt.Fprintf(b, "Duration:  %v\n", r.Duration().Round(time.Second))
	fmt.Fprintln(b, "\nBy priority:")
	for _, t := range r.Tiers() {
		fmt.Fprintf(b, "  %-10v success=%d failed=%d skipped=%d\n", t.Priority, t.Success, t.Failed, t.Skipped)
	}
	if slow := r.Slowest(5); len(slow) > 0 {
		fmt.Fprintln(b, "\nSlowest tables:")
		for i, n := range slow {
			fmt.Fprintf(b, "  %d. %-30v %8.1fs\n", i+1, n.Name, n.Duration().Seconds())
		}
	}
	if f := r.Failed(); len(f) > 0 {
		fmt.Fprintln(b, "\nFailed tables:")
		for _, n := range f {
			fmt.Fprintf(b, "  - %v (%v, %d attempt(s)): %v\n", n.Name, n.Priority, n.Attempts, n.Error)
		}
	}
	fmt.Fprintln(b, line)
	_, err := io.WriteString(w, b.String())
	return err
}
