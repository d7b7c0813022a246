// cmd/tools/filter-compiler/main.go

// Command filter-compiler compiles listing search filters offline and prints
// the SQL the query-listings worker would run.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
