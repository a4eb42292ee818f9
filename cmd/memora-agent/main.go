package main

import (
	"os"

	"github.com/dl-alexandre/memora/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
