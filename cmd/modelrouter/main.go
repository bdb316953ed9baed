package main

import (
	"fmt"
	"os"

	"github.com/seantiz/modelrouter/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "modelrouter: %v\n", err)
		os.Exit(1)
	}
}
