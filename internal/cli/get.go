package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a recording",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().StringP("out", "o", "", "Write the resident payload to this file")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")

	a := openApp(cmd.Context())
	defer a.Close()

	rec, err := a.Store.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if out != "" && len(rec.Payload) > 0 {
		if err := os.WriteFile(out, rec.Payload, 0o644); err != nil {
			exitErr("write payload", err)
		}
	}
	printJSON(rec)
}
