package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/resolve"
)

func init() {
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Find playable audio for a recording",
		Long: "Probe the remote copy of a recording. A missing remote object demotes the recording; " +
			"the local payload is used when present.",
		Args: cobra.ExactArgs(1),
		Run:  runResolve,
	}

	cmd.Flags().StringP("out", "o", "", "Write local audio to this file")

	RootCmd.AddCommand(cmd)
}

func runResolve(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")

	a := openApp(cmd.Context())
	defer a.Close()

	src, err := a.Resolver.Resolve(cmd.Context(), args[0])
	if err != nil {
		exitErr("resolve", err)
	}
	if src.Kind == resolve.SourceLocal && out != "" {
		if err := os.WriteFile(out, src.Payload, 0o644); err != nil {
			exitErr("write audio", err)
		}
	}
	printJSON(map[string]any{
		"recording_id": src.RecordingID,
		"kind":         src.Kind,
		"ref":          src.Ref,
		"bytes":        len(src.Payload),
		"demoted":      src.Demoted,
	})
}
