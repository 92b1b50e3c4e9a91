package main

import (
	"os"

	"github.com/example/casenotes/internal/cli"
	"github.com/example/casenotes/internal/version"
)

func main() {
	if err := cli.RootCmd(version.String()).Execute(); err != nil {
		os.Exit(1)
	}
}
