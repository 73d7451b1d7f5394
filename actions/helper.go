package actions

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ghodss/yaml"
	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/scheduler"
)

// PlanTable is one table of a printed plan.
type PlanTable struct {
	Name         string          `json:"name"`
	Priority     config.Priority `json:"priority"`
	Dependencies []string        `json:"dependencies,omitempty"`
}

// PlanLevel holds the tables that can run together.
type PlanLevel struct {
	Level  int         `json:"level"`
	Tables []PlanTable `json:"tables"`
}

type Plan struct {
	Tables int         `json:"tables"`
	Levels []PlanLevel `json:"levels"`
}

// NewPlan converts g into its printable form. Levels are numbered from 1.
func NewPlan(g *scheduler.Graph) Plan {
	p := Plan{Tables: len(g.Names())}
	for idx, level := range g.Levels() {
		l := PlanLevel{Level: idx + 1, Tables: make([]PlanTable, 0, len(level))}
		for _, n := range level {
			l.Tables = append(l.Tables, PlanTable{Name: n.Name, Priority: n.Priority, Dependencies: n.Dependencies})
		}
		p.Levels = append(p.Levels, l)
	}
	return p
}

// WritePlan writes the plan of g to w in yaml or json format.
func WritePlan(g *scheduler.Graph, yamlOrJson string, w io.Writer) error {
	var err error
	var data []byte
	p := NewPlan(g)
	switch yamlOrJson {
	case "yaml":
		data, err = yaml.Marshal(p)
	case "json":
		data, err = json.MarshalIndent(p, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unsupported output format %q", yamlOrJson)
	}
	if err != nil {
		return fmt.Errorf("unable to marshal the plan: %v", err)
	}
	_, err = out(w).Write(data)
	return err
}

// out defaults w to stdout.
func out(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
