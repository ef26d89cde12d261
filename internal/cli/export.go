package cli

import (
	"github.com/spf13/cobra"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recordings as JSON",
		Long:  "Export recordings with their resident audio as JSON. Limit to one scope with -p and -i.",
		Run:   runExport,
	}

	cmd.Flags().StringP("program", "p", "", "Program slug")
	cmd.Flags().StringP("instance", "i", "", "Instance identifier")
	cmd.MarkFlagsRequiredTogether("program", "instance")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	var sc *model.Scope
	if cmd.Flags().Changed("program") {
		s := scopeFromFlags(cmd)
		sc = &s
	}

	a := openApp(cmd.Context())
	defer a.Close()

	recs, err := a.Store.ExportAll(cmd.Context(), sc)
	if err != nil {
		exitErr("export", err)
	}
	if recs == nil {
		recs = []store.ExportRecord{}
	}
	printJSON(recs)
}
