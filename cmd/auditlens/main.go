package main

import (
	"os"

	"github.com/dshills/auditlens/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
