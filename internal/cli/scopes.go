package cli

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "List program instances known to this device",
		Run:   runScopes,
	}

	RootCmd.AddCommand(cmd)
}

func runScopes(cmd *cobra.Command, args []string) {
	a := openApp(cmd.Context())
	defer a.Close()

	scopes, err := a.Store.ListScopes(cmd.Context())
	if err != nil {
		exitErr("scopes", err)
	}
	if !useTable() {
		if scopes == nil {
			scopes = []store.ScopeStats{}
		}
		printJSON(scopes)
		return
	}

	rows := make([][]string, 0, len(scopes))
	for _, s := range scopes {
		seen := "never"
		if s.FirstSeenAt != nil {
			seen = humanize.Time(*s.FirstSeenAt)
		}
		rows = append(rows, []string{
			s.Program, s.Instance,
			strconv.Itoa(s.Recordings),
			strconv.Itoa(s.Pending + s.Uploading),
			strconv.Itoa(s.Uploaded),
			strconv.Itoa(s.Failed),
			seen,
		})
	}
	fmt.Println(renderTable([]string{"PROGRAM", "INSTANCE", "RECORDINGS", "PENDING", "UPLOADED", "FAILED", "ACTIVATED"}, rows, 3, 4, 5, 6))
}
