package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ikchain/pkg/chain"
	"ikchain/pkg/kinematics"
)

func newRunCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Drive a chain interactively from standard input",
		Long: `run reads one command per line:

  increase, +       nudge the ground truth up by one step
  decrease, -       nudge the ground truth down by one step
  set a,b,...       replace the ground-truth angles
  solve             recover the angles of the current ground truth
  show              print the current state
  quit, exit        stop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := g.load(cmd)
			if err != nil {
				return err
			}
			state, err := newState(settings, nil)
			if err != nil {
				return err
			}
			return drive(cmd, state, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// drive executes commands from in until EOF or quit. Bad commands are
// reported and skipped.
func drive(cmd *cobra.Command, state *chain.State, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")

		switch strings.ToLower(verb) {
		case "quit", "exit":
			return nil
		case "increase", "+", "decrease", "-":
			dir, _ := chain.ParseDirection(verb)
			state.Nudge(dir)
			fmt.Fprintf(out, "ground truth %s\n", formatAngles(state.GroundTruthAngles()))
		case "set":
			angles, err := parseAngles(rest)
			if err == nil {
				err = state.SetGroundTruth(angles)
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "ground truth %s\n", formatAngles(state.GroundTruthAngles()))
		case "solve":
			summary, err := state.TriggerSolve(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "%s after %d iterations, cost %.3g, recovered %s\n",
				summary.Status, summary.Iterations, summary.FinalCost, formatAngles(state.RecoveredAngles()))
		case "show":
			show(out, state)
		default:
			fmt.Fprintf(out, "error: unknown command %q\n", verb)
		}
	}
	return scanner.Err()
}

func parseAngles(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad angle %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

func formatAngles(angles []float64) string {
	parts := make([]string, len(angles))
	for i, a := range angles {
		parts[i] = strconv.FormatFloat(a, 'f', 4, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatPositions(pos []kinematics.Vec2) string {
	parts := make([]string, len(pos))
	for i, p := range pos {
		parts[i] = fmt.Sprintf("(%.4f, %.4f)", p.X, p.Y)
	}
	return strings.Join(parts, " ")
}

func show(out io.Writer, state *chain.State) {
	snap := state.Snapshot()
	fmt.Fprintf(out, "ground truth: %s %s\n", formatAngles(snap.GroundTruthAngles), formatPositions(snap.GroundTruthPositions))
	fmt.Fprintf(out, "recovered:    %s %s\n", formatAngles(snap.RecoveredAngles), formatPositions(snap.RecoveredPositions))
	if snap.LastSummary != nil {
		fmt.Fprintf(out, "last solve:   %s\n", snap.LastSummary.Status)
	}
}
