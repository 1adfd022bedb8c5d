// Command navbridge-stress drives the navigation bridge with a large, churning
// agent population and prints a timing report.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
