package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/gateway"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/planner"
)

func init() {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Assemble the program plan for a scope",
		Long: "Order every durable answer of the scope by prompt and creation time and emit " +
			"[intro, (prompt cue, answers)..., outro]. Fails while any upload is still pending. " +
			"With --submit the plan is sent to the audio gateway.",
		Run: runPlan,
	}

	addScopeFlags(cmd)
	cmd.Flags().Bool("submit", false, "Submit the plan to the audio gateway")
	cmd.Flags().StringP("output", "o", "json", "Plan encoding: json or yaml")

	RootCmd.AddCommand(cmd)
}

func runPlan(cmd *cobra.Command, args []string) {
	sc := scopeFromFlags(cmd)
	submit, _ := cmd.Flags().GetBool("submit")
	output, _ := cmd.Flags().GetString("output")

	a := openApp(cmd.Context())
	defer a.Close()
	activate(cmd.Context(), a, sc)

	plan, err := a.Planner.Plan(cmd.Context(), sc)
	if err != nil {
		var ve *planner.ValidationError
		if errors.As(err, &ve) && errors.Is(err, planner.ErrIncompleteUploads) {
			exitErr("plan", fmt.Errorf("%w; run `littlemic upload -p %s -i %s` first", err, sc.Program, sc.Instance))
		}
		exitErr("plan", err)
	}

	if !submit {
		switch strings.ToLower(output) {
		case "yaml", "yml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(plan); err != nil {
				exitErr("encode plan", err)
			}
			enc.Close()
		default:
			printJSON(plan)
		}
		return
	}

	res, err := a.Planner.Submit(cmd.Context(), plan)
	if err != nil {
		var se *gateway.SubmitError
		if errors.As(err, &se) {
			for _, ref := range se.MissingRefs {
				fmt.Fprintf(os.Stderr, "missing: %s\n", ref)
			}
		}
		exitErr("submit", err)
	}
	printJSON(res)
}
