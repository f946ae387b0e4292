package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

// scenarioColumn names the scenario column of the table.
const scenarioColumn = "scen"

// ScenarioSource yields scenario names in dispatch order.
type ScenarioSource interface {
	ScenarioNames(ctx context.Context) ([]string, error)
}

// CSVSource reads scenario names from the scen column of a CSV table.
type CSVSource struct {
	Path string
}

func (s CSVSource) ScenarioNames(_ context.Context) ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open scenario table: %w", err)
	}
	defer f.Close()
	names, err := ReadScenarioNames(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return names, nil
}

// ReadScenarioNames returns the scen column of a CSV table in row order.
// Other columns are ignored; rows with an empty name are skipped.
func ReadScenarioNames(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("scenario table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read scenario table header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(h) == scenarioColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("scenario table has no %q column", scenarioColumn)
	}

	var names []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read scenario table: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if name := strings.TrimSpace(rec[col]); name != "" {
			names = append(names, name)
		}
	}
}

// Expand pairs every name with every suffix, names outermost.
func Expand(names, suffixes []string) []domain.Scenario {
	out := make([]domain.Scenario, 0, len(names)*len(suffixes))
	for _, n := range names {
		for _, s := range suffixes {
			out = append(out, domain.Scenario{Name: n, Suffix: s})
		}
	}
	return out
}
