// Package scheduler builds the dependency graph of the configured tables and runs their load units
// level by level.
package scheduler

import (
	"sort"
	"strings"
	"time"

	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/logger"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether a node in this status will not change again during the run.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// TableNode is one table of a run. Nodes are rebuilt on every run.
type TableNode struct {
	Name         string          `json:"table"`
	Priority     config.Priority `json:"priority"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Level        int             `json:"level"`
	Status       Status          `json:"status"`
	StartTime    time.Time       `json:"startTime,omitempty"`
	EndTime      time.Time       `json:"endTime,omitempty"`
	Error        string          `json:"error,omitempty"`
	SkipReason   string          `json:"skipReason,omitempty"`
	RetryCount   int             `json:"retryCount"`
	Attempts     int             `json:"attempts"`
	Rows         int64           `json:"rows"`
	Inserted     int64           `json:"inserted"`
	Updated      int64           `json:"updated"`
}

// Duration is zero until the node has both start and end times.
func (n TableNode) Duration() time.Duration {
	if n.StartTime.IsZero() || n.EndTime.IsZero() {
		return 0
	}
	return n.EndTime.Sub(n.StartTime)
}

// Graph holds the nodes of a run and their dependency edges.
type Graph struct {
	nodes      map[string]*TableNode
	dependents map[string][]string
	levels     [][]*TableNode
}

// BuildGraph creates one node per table. Dependencies on tables that are not configured are dropped
// with a warning. A cyclic graph is a ConfigurationError.
func BuildGraph(log logger.Logger, tables []config.TableLoadConfig) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]*TableNode, len(tables)),
		dependents: make(map[string][]string),
	}
	for _, t := range tables {
		if _, ok := g.nodes[t.TableName]; ok {
			return nil, etlerrors.NewConfigurationError(t.TableName, "table is configured more than once")
		}
		p := t.Priority
		if p == "" {
			p = config.PriorityNormal
		}
		g.nodes[t.TableName] = &TableNode{Name: t.TableName, Priority: p, Status: StatusPending, Level: -1}
	}
	for _, t := range tables {
		n := g.nodes[t.TableName]
		seen := make(map[string]bool)
		for _, d := range t.DependsOn {
			d = strings.TrimSpace(d)
			if d == "" || seen[d] {
				continue
			}
			seen[d] = true
			if _, ok := g.nodes[d]; !ok {
				log.WithField("table", t.TableName).Warn("dependency ", d, " is not a configured table, ignored")
				continue
			}
			n.Dependencies = append(n.Dependencies, d)
			g.dependents[d] = append(g.dependents[d], t.TableName)
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, etlerrors.NewConfigurationError(cycle[0], "cyclic dependency: %v", strings.Join(cycle, " -> "))
	}
	levels, err := g.peel()
	if err != nil {
		return nil, err
	}
	g.levels = levels
	return g, nil
}

// findCycle walks the graph depth first; an edge back into the recursion stack closes a cycle.
// The cycle is returned as a path whose first and last elements are equal.
func (g *Graph) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var visit func(name string) []string
	visit = func(name string) []string {
		visited[name] = true
		onStack[name] = true
		stack = append(stack, name)
		for _, d := range g.nodes[name].Dependencies {
			if onStack[d] {
				for i, s := range stack {
					if s == d {
						return append(append([]string{}, stack[i:]...), d)
					}
				}
			}
			if !visited[d] {
				if c := visit(d); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		onStack[name] = false
		return nil
	}
	for _, name := range g.Names() {
		if !visited[name] {
			if c := visit(name); c != nil {
				return c
			}
		}
	}
	return nil
}

// peel repeatedly removes the nodes with no unsatisfied dependency. Each pass is one level.
func (g *Graph) peel() ([][]*TableNode, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for name, n := range g.nodes {
		inDegree[name] = len(n.Dependencies)
	}
	var levels [][]*TableNode
	for len(inDegree) > 0 {
		var level []*TableNode
		for name, d := range inDegree {
			if d == 0 {
				level = append(level, g.nodes[name])
			}
		}
		if len(level) == 0 {
			return nil, etlerrors.NewConfigurationError("", "dependency graph has no schedulable table")
		}
		sortByPriority(level)
		for _, n := range level {
			n.Level = len(levels)
			delete(inDegree, n.Name)
			for _, dep := range g.dependents[n.Name] {
				inDegree[dep]--
			}
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// sortByPriority orders critical, high then normal tables, by name within a tier.
func sortByPriority(nodes []*TableNode) {
	sort.Slice(nodes, func(i, j int) bool {
		ri, rj := nodes[i].Priority.Rank(), nodes[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return nodes[i].Name < nodes[j].Name
	})
}

// Names returns the table names sorted alphabetically.
func (g *Graph) Names() []string {
	retval := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		retval = append(retval, name)
	}
	sort.Strings(retval)
	return retval
}

func (g *Graph) Node(name string) (*TableNode, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Levels returns the execution levels in order.
func (g *Graph) Levels() [][]*TableNode {
	return g.levels
}

// LevelNames returns Levels as table names.
func (g *Graph) LevelNames() [][]string {
	retval := make([][]string, len(g.levels))
	for i, level := range g.levels {
		for _, n := range level {
			retval[i] = append(retval[i], n.Name)
		}
	}
	return retval
}

// Dependents returns the tables that declare a dependency on name.
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}
