package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/engine"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/logging"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// loadRequiredProviders loads every provider referenced by the declarations.
func (s *session) loadRequiredProviders(ctx context.Context, cfg *ir.Config) error {
	for _, res := range cfg.Resources {
		if err := s.registry.LoadProvider(ctx, res.Provider); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}
	logging.Debug("providers loaded", "providers", s.registry.Loaded())
	return nil
}

// loadStateProviders loads every provider referenced by state, which deletes
// and refreshes need.
func (s *session) loadStateProviders(ctx context.Context, st *ir.State) error {
	for _, res := range st.Resources {
		if err := s.registry.LoadProvider(ctx, res.Provider); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}
	return nil
}

func (s *session) colorize(code string) string {
	if !s.color {
		return ""
	}
	return code
}

func actionSymbol(action string) (symbol, color string) {
	switch action {
	case ir.ActionCreate:
		return "+", colorGreen
	case ir.ActionDelete:
		return "-", colorRed
	case ir.ActionUpdate:
		return "~", colorYellow
	default:
		return " ", colorReset
	}
}

// renderPlanChanges prints every change that would call a provider.
func (s *session) renderPlanChanges(plan *ir.Plan) {
	w := s.out
	reset := s.colorize(colorReset)
	for _, change := range plan.Changes {
		if change.Action == ir.ActionNoOp {
			continue
		}
		symbol, code := actionSymbol(change.Action)
		color := s.colorize(code)

		fmt.Fprintf(w, "\n%s  # %s will be %s%s\n", color, change.Address, strings.ToLower(change.Action)+"d", reset)
		fmt.Fprintf(w, "%s  %s %s {%s\n", color, symbol, change.Address, reset)

		switch {
		case len(change.Diff) > 0:
			s.renderPropertyDiff(change.Diff)
		case change.Action == ir.ActionCreate && change.Desired != nil:
			for _, k := range slices.Sorted(maps.Keys(change.Desired.Properties)) {
				fmt.Fprintf(w, "%s      + %s = %s%s\n", color, k, formatValue(change.Desired.Properties[k]), reset)
			}
		case change.Action == ir.ActionDelete && change.Prior != nil:
			for _, k := range slices.Sorted(maps.Keys(change.Prior.Inputs)) {
				fmt.Fprintf(w, "%s      - %s = %s%s\n", color, k, formatValue(change.Prior.Inputs[k]), reset)
			}
		}
		fmt.Fprintf(w, "%s    }%s\n", color, reset)
	}
}

func (s *session) renderPropertyDiff(diff map[string]*ir.PropertyDiff) {
	reset := s.colorize(colorReset)
	for _, key := range slices.Sorted(maps.Keys(diff)) {
		d := diff[key]
		switch d.Action {
		case "create":
			fmt.Fprintf(s.out, "%s      + %s = %s%s\n", s.colorize(colorGreen), key, formatValue(d.After), reset)
		case "delete":
			fmt.Fprintf(s.out, "%s      - %s = %s%s\n", s.colorize(colorRed), key, formatValue(d.Before), reset)
		default:
			fmt.Fprintf(s.out, "%s      ~ %s = %s -> %s%s\n", s.colorize(colorYellow), key, formatValue(d.Before), formatValue(d.After), reset)
		}
	}
}

// renderPlanSummary prints the change counts as a table.
func renderPlanSummary(w io.Writer, plan *ir.Plan) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Create", "Update", "Delete", "No-op"})
	table.SetAutoFormatHeaders(false)
	table.Append([]string{
		fmt.Sprint(plan.Summary.Create),
		fmt.Sprint(plan.Summary.Update),
		fmt.Sprint(plan.Summary.Delete),
		fmt.Sprint(plan.Summary.NoOp),
	})
	table.Render()
}

// renderResources lists state resources as a table.
func renderResources(w io.Writer, resources []*ir.ResourceState) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Address", "Provider", "ID"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, res := range resources {
		id := ""
		if v, ok := res.Outputs["id"]; ok {
			id = fmt.Sprint(v)
		} else if v, ok := res.Outputs["arn"]; ok {
			id = fmt.Sprint(v)
		}
		table.Append([]string{res.Address(), res.Provider, id})
	}
	table.Render()
}

// renderEvent prints one apply progress line.
func renderEvent(w io.Writer, event engine.ApplyEvent) {
	switch event.Status {
	case engine.EventStarted:
		fmt.Fprintf(w, "%s: %s started\n", event.Address, strings.ToLower(event.Action))
	case engine.EventCompleted:
		fmt.Fprintf(w, "%s: %s complete after %s\n", event.Address, strings.ToLower(event.Action), event.Duration.Round(100*time.Millisecond))
	case engine.EventFailed:
		fmt.Fprintf(w, "%s: %s failed\n", event.Address, strings.ToLower(event.Action))
	case engine.EventSkipped:
		fmt.Fprintf(w, "%s: skipped (a dependency failed)\n", event.Address)
	}
}

func renderOutputs(w io.Writer, outputs map[string]any) {
	if len(outputs) == 0 {
		return
	}
	fmt.Fprintln(w, "\nOutputs:")
	for _, k := range slices.Sorted(maps.Keys(outputs)) {
		fmt.Fprintf(w, "  %s = %s\n", k, formatValue(outputs[k]))
	}
}

// confirm asks for a yes on in.
func confirm(in io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "\n%s Enter 'yes' to continue: ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.TrimSpace(line) {
	case "yes", "y":
		return true
	default:
		return false
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	default:
		return fmt.Sprintf("%v", val)
	}
}
