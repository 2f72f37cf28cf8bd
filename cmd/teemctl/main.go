package main

import (
	"os"

	"github.com/teem-market/teem/cmd/teemctl/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
