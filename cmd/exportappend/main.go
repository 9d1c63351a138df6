// Command exportappend appends CSV exports to staging tables and runs the
// merge procedures that fold them into the person and household tables.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
