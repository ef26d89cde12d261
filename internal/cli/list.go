package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings of a scope",
		Run:   runList,
	}

	addScopeFlags(cmd)
	cmd.Flags().StringP("prompt", "q", "", "Filter by prompt")
	cmd.Flags().StringP("status", "s", "", "Filter by status (comma-separated)")
	cmd.Flags().Bool("ids-only", false, "Only output recording IDs")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	sc := scopeFromFlags(cmd)
	rawPrompt, _ := cmd.Flags().GetString("prompt")
	statusStr, _ := cmd.Flags().GetString("status")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	params := store.ListParams{Scope: sc}
	if rawPrompt != "" {
		order, err := model.NormalizePromptID(rawPrompt)
		if err != nil {
			exitErr("prompt", err)
		}
		params.PromptOrder = order
	}
	if statusStr != "" {
		for _, s := range strings.Split(statusStr, ",") {
			st, ok := model.ParseUploadStatus(strings.TrimSpace(s))
			if !ok {
				exitErr("status", &invalidStatusError{s})
			}
			params.Statuses = append(params.Statuses, st)
		}
	}

	a := openApp(cmd.Context())
	defer a.Close()

	recs, err := a.Store.List(cmd.Context(), params)
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, r := range recs {
			fmt.Println(r.ID)
		}
		return
	}
	if !useTable() {
		if recs == nil {
			recs = []model.Recording{}
		}
		printJSON(recs)
		return
	}

	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		local := "-"
		if r.HasPayload() {
			local = humanize.Bytes(uint64(r.PayloadBytes))
		}
		rows = append(rows, []string{
			strconv.Itoa(r.PromptOrder),
			r.ID,
			string(r.UploadStatus),
			humanize.Bytes(uint64(r.SizeBytes)),
			local,
			humanize.Time(r.CreatedAt),
		})
	}
	fmt.Println(renderTable([]string{"PROMPT", "ID", "STATUS", "SIZE", "LOCAL", "CREATED"}, rows, 1, 4, 5))
}

type invalidStatusError struct{ value string }

func (e *invalidStatusError) Error() string {
	return "unknown status " + strconv.Quote(e.value) + " (want pending, uploading, uploaded or failed)"
}
