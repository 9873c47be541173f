// Command datawise runs the task engine as an HTTP service or executes a
// single command from the shell.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "datawise:", err)
		return 1
	}
	return 0
}
