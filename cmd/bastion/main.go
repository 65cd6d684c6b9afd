package main

import (
	"os"

	"github.com/opensec-dev/bastion/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
