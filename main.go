package main

import (
	"os"

	"github.com/tradedesk/routeopt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
