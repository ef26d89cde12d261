package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/capture"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/recorder"
)

func init() {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture an answer for a prompt",
		Long: "Capture an answer from the configured input until Ctrl-C, --duration, or the 10 minute ceiling. " +
			"With --file the file is stored as the answer. The recording is uploaded before the command exits.",
		Run: runRecord,
	}

	addScopeFlags(cmd)
	cmd.Flags().StringP("prompt", "q", "", "Prompt identifier, e.g. 3 or QID3 (required)")
	cmd.Flags().String("file", "", "Use a pre-recorded file instead of the capture command")
	cmd.Flags().Duration("duration", 0, "Stop after this long")
	cmd.MarkFlagRequired("prompt")

	RootCmd.AddCommand(cmd)
}

func runRecord(cmd *cobra.Command, args []string) {
	sc := scopeFromFlags(cmd)
	rawPrompt, _ := cmd.Flags().GetString("prompt")
	file, _ := cmd.Flags().GetString("file")
	duration, _ := cmd.Flags().GetDuration("duration")

	order, err := model.NormalizePromptID(rawPrompt)
	if err != nil {
		exitErr("prompt", err)
	}
	prompt := model.PromptScope{Scope: sc, PromptOrder: order}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := openApp(ctx)
	defer a.Close()
	activate(ctx, a, sc)

	var dev capture.Device = a.Device()
	if file != "" {
		dev = &capture.FileDevice{Path: file}
	}

	type outcome struct {
		rec *model.Recording
		err error
	}
	finalized := make(chan outcome, 1)
	m := a.NewRecorder(prompt, dev, func(rec *model.Recording, err error) {
		finalized <- outcome{rec, err}
	})

	if err := m.Start(ctx); err != nil {
		var capErr *recorder.CapabilityError
		var capacityErr *recorder.CapacityError
		switch {
		case errors.As(err, &capacityErr):
			exitErr("limit reached", err)
		case errors.As(err, &capErr):
			exitErr(fmt.Sprintf("microphone unavailable (%s)", capErr.Reason), err)
		}
		exitErr("start", err)
	}

	if file == "" {
		fmt.Fprintf(os.Stderr, "recording %s, press Ctrl-C to stop\n", prompt)
		var timeout <-chan time.Time
		if duration > 0 {
			timer := time.NewTimer(duration)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
		case <-timeout:
		case out := <-finalized:
			if out.err != nil {
				exitErr("save", out.err)
			}
			printJSON(out.rec)
			return
		}
	}

	rec, err := m.Stop(cmd.Context())
	if errors.Is(err, recorder.ErrNotCapturing) {
		// The ceiling fired while we were stopping.
		out := <-finalized
		rec, err = out.rec, out.err
	}
	if err != nil {
		exitErr("save", err)
	}
	printJSON(rec)
}
