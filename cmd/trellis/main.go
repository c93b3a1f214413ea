// Command trellis is a terminal client for browsing and mutating issue
// collections: grouped boards, flat lists, drag-style moves, and issue
// creation against the issue service API.
package main

import "os"

var version = "dev" // set via -ldflags at release time

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
