package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			out, err := cfg.YAML()
			if err != nil {
				exitErr("render config", err)
			}
			os.Stdout.Write(out)
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the default config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.DefaultPath())
		},
	}

	cmd.AddCommand(show, path)
	RootCmd.AddCommand(cmd)
}
