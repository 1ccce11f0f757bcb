package main

import (
	"os"

	"github.com/jonwraymond/calccache/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
