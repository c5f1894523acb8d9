package main

import (
	"os"

	"github.com/pixeljobs/pixeljobs/cmd/pixeljobs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
