package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lazypower/seedbed/internal/garden"
)

var (
	feedViewer string
	feedLimit  int
)

var feedCmd = &cobra.Command{
	Use:       "feed <discovery|following|private>",
	Short:     "Print a feed as a viewer would see it",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"discovery", "following", "private"},
	RunE:      runFeed,
}

func init() {
	feedCmd.Flags().StringVar(&feedViewer, "viewer", "", "Viewer actor ID")
	feedCmd.Flags().IntVarP(&feedLimit, "limit", "n", 20, "Maximum number of units")
}

func runFeed(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	feeds, closeFeeds, err := rt.feedBuilder(ctx)
	if err != nil {
		return fmt.Errorf("recents cache: %w", err)
	}
	defer closeFeeds()

	var units []garden.Unit
	switch args[0] {
	case "discovery":
		units, err = feeds.Discovery(ctx, feedViewer, feedLimit)
	case "following":
		units, err = feeds.Following(ctx, feedViewer, feedLimit)
	case "private":
		units, err = feeds.Private(ctx, feedViewer, feedLimit)
	default:
		return fmt.Errorf("unknown feed %q", args[0])
	}
	if err != nil {
		return err
	}

	if len(units) == 0 {
		fmt.Println("Nothing here yet.")
		return nil
	}
	printUnits(os.Stdout, units)
	return nil
}

var stateColors = map[garden.State]*color.Color{
	garden.Planted:   color.New(color.FgHiBlack),
	garden.Sprouting: color.New(color.FgGreen),
	garden.Blooming:  color.New(color.FgMagenta, color.Bold),
	garden.Wilting:   color.New(color.FgYellow),
	garden.Composted: color.New(color.FgRed),
}

func printUnits(w io.Writer, units []garden.Unit) {
	for i, u := range units {
		state := string(u.State)
		if c, ok := stateColors[u.State]; ok {
			state = c.Sprint(state)
		}
		fmt.Fprintf(w, "%d. [%s] %s by %s (growth %.1f)\n", i+1, state, u.ID, u.AuthorID, garden.WeightedGrowth(u))

		body := strings.ReplaceAll(u.Body, "\n", " ")
		if r := []rune(body); len(r) > 120 {
			body = string(r[:120]) + "..."
		}
		fmt.Fprintf(w, "   %s\n", body)
	}
}
