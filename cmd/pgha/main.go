// Command pgha coordinates failover for a two-node PostgreSQL pair behind
// pgpool-II. The same binary runs beside each database node (node, trigger,
// wait-peer) and on the pool host (failover, repair, watch, status).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
