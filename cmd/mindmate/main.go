package main

import (
	"os"

	"github.com/mindmate/cognition/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
