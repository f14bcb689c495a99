package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatterbox/internal/config"
)

type rankingRow struct {
	name  string
	count int
}

func rankingsCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "Print the persisted emoji ranking table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := openRankingStore(rankingStoreConfig(cfg))
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			rankings, err := st.Load(ctx)
			if err != nil {
				return fmt.Errorf("load rankings: %w", err)
			}
			printRankings(os.Stdout, sortRankings(rankings), top)
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 0, "only show the N most used (0 = all)")
	return cmd
}

// sortRankings orders by count descending, then name.
func sortRankings(rankings map[string]int) []rankingRow {
	rows := make([]rankingRow, 0, len(rankings))
	for name, count := range rankings {
		rows = append(rows, rankingRow{name: name, count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].name < rows[j].name
	})
	return rows
}

func printRankings(w io.Writer, rows []rankingRow, top int) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no emoji ranked yet)")
		return
	}
	if top > 0 && top < len(rows) {
		rows = rows[:top]
	}

	width := runewidth.StringWidth("EMOJI")
	for _, r := range rows {
		if cw := runewidth.StringWidth(r.name); cw > width {
			width = cw
		}
	}
	fmt.Fprintf(w, "%4s  %s  %s\n", "#", runewidth.FillRight("EMOJI", width), "USES")
	for i, r := range rows {
		fmt.Fprintf(w, "%4d  %s  %d\n", i+1, runewidth.FillRight(r.name, width), r.count)
	}
}
