package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-host/boot"
)

func newStepsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the boot sequence with each step's prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newState(flags)
			if err != nil {
				return err
			}
			printSteps(cmd.OutOrStdout(), s.Steps())
			return nil
		},
	}
}

func printSteps(w io.Writer, steps []boot.Step) {
	fmt.Fprintln(w, titleStyle.Render("Boot sequence"))
	for i, step := range steps {
		reqs := make([]string, len(step.Requires))
		for j, r := range step.Requires {
			reqs[j] = string(r)
		}
		line := fmt.Sprintf("%2d %s", i+1, stepStyle.Render(funcStyle.Render(string(step.ID))))
		if len(reqs) > 0 {
			line += " " + typeStyle.Render("after "+strings.Join(reqs, ", "))
		}
		fmt.Fprintln(w, line)
	}
}

// newTracePrinter renders boot events as they happen.
func newTracePrinter(w io.Writer) boot.Tracer {
	return boot.TracerFunc(func(e boot.Event) {
		prefix := fmt.Sprintf("[%d/%d]", e.Index+1, e.Total)
		switch e.Kind {
		case boot.EventDone:
			fmt.Fprintf(w, "%s %s %s\n", helpStyle.Render(prefix), stepStyle.Render(string(e.Step)), resultStyle.Render(e.Elapsed.String()))
		case boot.EventFailed:
			fmt.Fprintf(w, "%s %s %s\n", helpStyle.Render(prefix), stepStyle.Render(string(e.Step)), errorStyle.Render(e.Err.Error()))
		}
	})
}
