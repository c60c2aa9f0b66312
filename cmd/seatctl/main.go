// Command seatctl is the operator CLI for the seat allocation engine.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/warp/seat-engine/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
