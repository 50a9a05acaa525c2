package main

import (
	"os"

	"github.com/lherron/labelsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
