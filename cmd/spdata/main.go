package main

import (
	"fmt"
	"os"

	"github.com/tader68/spdata/cmd/spdata/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
