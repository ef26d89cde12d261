package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "upload [id]",
		Short: "Upload one recording or retry every pending upload of a scope",
		Args:  cobra.MaximumNArgs(1),
		Run:   runUpload,
	}

	cmd.Flags().StringP("program", "p", "", "Program slug")
	cmd.Flags().StringP("instance", "i", "", "Instance identifier")
	cmd.MarkFlagsRequiredTogether("program", "instance")
	cmd.Flags().Bool("follow", false, "Print status changes to stderr as they happen")

	RootCmd.AddCommand(cmd)
}

func runUpload(cmd *cobra.Command, args []string) {
	follow, _ := cmd.Flags().GetBool("follow")
	if len(args) == 0 && !cmd.Flags().Changed("program") {
		exitErr("upload", fmt.Errorf("give a recording id or --program and --instance"))
	}

	a := openApp(cmd.Context())
	defer a.Close()

	if follow {
		sub := a.Bus.Subscribe()
		defer sub.Close()
		go func() {
			for ev := range sub.C() {
				fmt.Fprintf(os.Stderr, "%s %s %s\n", ev.At.Format("15:04:05"), ev.RecordingID, ev.Status)
			}
		}()
	}

	if len(args) == 1 {
		if err := a.Uploader.Upload(cmd.Context(), args[0]); err != nil {
			exitErr("upload", err)
		}
		rec, err := a.Store.Get(cmd.Context(), args[0])
		if err != nil {
			exitErr("get", err)
		}
		printJSON(rec)
		return
	}

	sc := scopeFromFlags(cmd)
	activate(cmd.Context(), a, sc)
	sum, err := a.Uploader.RetryPending(cmd.Context(), sc)
	if err != nil {
		exitErr("retry", err)
	}
	printJSON(sum)
	if sum.Failed > 0 {
		exitErr("retry", fmt.Errorf("%d of %d uploads failed", sum.Failed, sum.Attempted))
	}
}
