package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import recordings from JSON",
		Long:  "Import recordings from JSON (stdin or file). Expects the format produced by export. Known IDs are skipped.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var in io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open input", err)
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		exitErr("read input", err)
	}

	var recs []store.ExportRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		exitErr("parse json", err)
	}

	a := openApp(cmd.Context())
	defer a.Close()

	imported, err := a.Store.Import(cmd.Context(), recs)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"imported":%d,"skipped":%d}`+"\n", imported, len(recs)-imported)
}
