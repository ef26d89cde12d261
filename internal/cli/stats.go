package cli

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	a := openApp(cmd.Context())
	defer a.Close()

	stats, err := a.Store.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if !useTable() {
		printJSON(stats)
		return
	}
	fmt.Printf("database   %s (%s)\n", stats.DBPath, humanize.Bytes(uint64(stats.DBSizeBytes)))
	fmt.Printf("recordings %d, %s of audio held locally\n", stats.TotalRecordings, humanize.Bytes(uint64(stats.ResidentPayload)))
	rows := make([][]string, 0, len(stats.ByStatus))
	for _, st := range []string{"pending", "uploading", "uploaded", "failed"} {
		rows = append(rows, []string{st, strconv.Itoa(stats.ByStatus[st])})
	}
	fmt.Println(renderTable([]string{"STATUS", "COUNT"}, rows, 2))
}
