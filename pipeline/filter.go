package pipeline

import (
	"fmt"
	"strings"

	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
)

// BuildFilter composes the business filter with the incremental lower bound.
// Full mode never applies a timestamp bound.
func BuildFilter(t *config.TableLoadConfig, mode string) string {
	clauses := make([]string, 0, 2)
	if f := strings.TrimSpace(t.FilterClause); f != "" && !strings.EqualFold(f, "nan") {
		clauses = append(clauses, f)
	}
	if mode == constants.ModeIncremental {
		if bound, ok := t.IncrementalLowerBound(); ok {
			layout := constants.TimeFormatDateTime
			if t.DateModifPrecision == config.PrecisionDate {
				layout = constants.TimeFormatDate
			}
			clauses = append(clauses, fmt.Sprintf("%v >= '%v'", helper.QuoteSourceIdentifier(t.DateModifCol), bound.Format(layout)))
		}
	}
	return strings.Join(clauses, " AND ")
}
