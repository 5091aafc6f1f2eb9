package main

import (
	"os"

	"github.com/proxydeck/proxydeck/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
