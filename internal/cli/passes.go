package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lazypower/seedbed/internal/engine"
)

var passTimeout time.Duration

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Run one lifecycle pass",
	Long: `Evaluate every live unit once and apply the stage transitions that are due.

Examples:
  seedbed lifecycle
  seedbed lifecycle --timeout 2m`,
	RunE: runLifecycle,
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive composted units and prune old discovery markers",
	RunE:  runArchive,
}

func init() {
	lifecycleCmd.Flags().DurationVar(&passTimeout, "timeout", 5*time.Minute, "Abort the pass after this long")
	archiveCmd.Flags().DurationVar(&passTimeout, "timeout", 5*time.Minute, "Abort the pass after this long")
}

func runLifecycle(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), passTimeout)
	defer cancel()

	sum, err := newEngine(rt, nil).RunLifecyclePass(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle pass: %w", err)
	}
	printLifecycleSummary(os.Stdout, sum)
	if len(sum.Errors) > 0 {
		return fmt.Errorf("%d unit(s) failed", len(sum.Errors))
	}
	return nil
}

func runArchive(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), passTimeout)
	defer cancel()

	sum, err := newEngine(rt, nil).RunArchivePass(ctx)
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Archived %d unit(s), pruned %d marker(s)\n", green("✓"), sum.Archived, sum.MarkersPruned)
	if err != nil {
		return fmt.Errorf("archive pass: %w", err)
	}
	return nil
}

func printLifecycleSummary(w io.Writer, sum engine.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "Evaluated %d unit(s) in %s\n", sum.Evaluated, sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  sprouted:  %s\n", green(sum.Sprouted))
	fmt.Fprintf(w, "  bloomed:   %s\n", green(sum.Bloomed))
	fmt.Fprintf(w, "  wilted:    %s\n", yellow(sum.Wilted))
	fmt.Fprintf(w, "  composted: %s\n", yellow(sum.Composted))

	if len(sum.Errors) == 0 {
		fmt.Fprintf(w, "%s %d transition(s)\n", green("✓"), sum.Transitions())
		return
	}
	fmt.Fprintf(w, "%s %d unit(s) failed\n", red("✗"), len(sum.Errors))
	for _, ue := range sum.Errors {
		fmt.Fprintf(w, "  %s: %v\n", ue.UnitID, ue.Err)
	}
}
