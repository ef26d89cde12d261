package main

import (
	"os"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
