package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Drop recordings with neither local audio nor a remote copy",
		Long: "Settle uploads interrupted by a previous run and delete failed recordings that hold " +
			"no local audio and no remote reference. The first run for a scope also clears " +
			"recordings cached from a previous install when the remote store holds nothing for it.",
		Run: runReconcile,
	}

	addScopeFlags(cmd)

	RootCmd.AddCommand(cmd)
}

func runReconcile(cmd *cobra.Command, args []string) {
	sc := scopeFromFlags(cmd)

	a := openApp(cmd.Context())
	defer a.Close()

	res, err := a.Activate(cmd.Context(), sc)
	printJSON(res)
	if err != nil {
		exitErr("reconcile", err)
	}
}
