// Command routesync is the offline companion to the sync service: it
// parses a customer master export and diffs it against a saved batch
// without touching the database. Useful for inspecting an export before
// uploading it, and for testing alternate mapping tables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
