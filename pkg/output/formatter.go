package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/ritzau/framegraph/pkg/model"
	"github.com/ritzau/framegraph/pkg/pool"
	"github.com/ritzau/framegraph/pkg/script"
)

// PrintPlan prints a nicely formatted schedule report with colors
func PrintPlan(w io.Writer, name string, plan *model.Plan, stats pool.Stats) {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	// Header
	bold.Fprintln(w, "Frame Graph - Compiled Plan")
	bold.Fprintln(w, "===========================")
	fmt.Fprintf(w, "Frame: %s (%s)\n", name, plan.Frame)
	fmt.Fprintf(w, "Passes: %d live, %d culled\n", len(plan.Steps), len(plan.Culled))
	fmt.Fprintln(w)

	for _, step := range plan.Steps {
		green.Fprintf(w, "%3d %s\n", step.Index, step.Pass)
		if len(step.Materialize) > 0 {
			cyan.Fprintf(w, "      + %s\n", strings.Join(step.Materialize, ", "))
		}
		if len(step.Destroy) > 0 {
			yellow.Fprintf(w, "      - %s\n", strings.Join(step.Destroy, ", "))
		}
	}
	fmt.Fprintln(w)

	if len(plan.Culled) > 0 {
		red.Fprintln(w, "CULLED PASSES:")
		for _, p := range plan.Culled {
			yellow.Fprintf(w, "  %s\n", p)
		}
		fmt.Fprintln(w)
	}

	var unused []string
	for _, r := range plan.Resources {
		if !r.Live {
			unused = append(unused, r.Name)
		}
	}
	if len(unused) > 0 {
		red.Fprintln(w, "UNUSED RESOURCES:")
		for _, r := range unused {
			yellow.Fprintf(w, "  %s\n", r)
		}
		fmt.Fprintln(w)
	}

	// Summary with color based on how many backings were recycled
	summaryColor := green
	if stats.Created > 0 && stats.Reused == 0 {
		summaryColor = yellow
	}
	summaryColor.Fprintf(w, "Pool: %d created, %d reused, %d evicted, %d idle\n",
		stats.Created, stats.Reused, stats.Evicted, stats.Idle)
}

// PrintExecutions lists what every executed pass was bound to.
func PrintExecutions(w io.Writer, executions []script.Execution) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)

	bold.Fprintln(w, "Executed passes:")
	for _, e := range executions {
		cyan.Fprintf(w, "  %s\n", e.Pass)
		for _, b := range e.Bindings {
			if b.Subresource {
				fmt.Fprintf(w, "    %s -> #%d level %d layer %d\n", b.Resource, b.Handle, b.Level, b.Layer)
				continue
			}
			fmt.Fprintf(w, "    %s -> #%d\n", b.Resource, b.Handle)
		}
	}
}
