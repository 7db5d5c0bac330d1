package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"devsetup/internal/organizer"
)

var (
	organizeDryRun bool
	organizeWatch  bool
)

// organizeCmd sorts the downloads folder into category subfolders.
var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Sort the downloads folder by file type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOrganize(cmd.Context(), cmd.OutOrStdout(), organizeDryRun, organizeWatch)
	},
}

func runOrganize(ctx context.Context, w io.Writer, dryRun, watch bool) error {
	o := organizer.New(afero.NewOsFs(), sess.cfg.Downloads)
	counts := make(map[string]int)
	o.OnMove = func(m organizer.Move) {
		counts[m.Category]++
	}

	if _, err := o.Organize(dryRun); err != nil {
		return err
	}
	writeCounts(w, counts)
	if !watch || dryRun {
		return nil
	}

	o.OnMove = nil
	return o.Watch(ctx)
}

func writeCounts(w io.Writer, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %d\n", name, counts[name])
	}
}

func init() {
	organizeCmd.Flags().BoolVarP(&organizeDryRun, "dry-run", "n", false, "Show what would move without moving anything")
	organizeCmd.Flags().BoolVarP(&organizeWatch, "watch", "w", false, "Keep running and organize new downloads as they finish")
	rootCmd.AddCommand(organizeCmd)
}
