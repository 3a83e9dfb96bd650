package main

import (
	"os"

	"github.com/hupe1980/agentcrew/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
