package main

import (
	"os"

	"videobatch.dev/internal/cli"
)

// set at build time via -ldflags
var version = "dev"

func main() {
	os.Exit(cli.Execute(os.Args[1:], version))
}
