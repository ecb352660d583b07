package main

import (
	"os"

	"github.com/hoofbeat/hoofbeat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
