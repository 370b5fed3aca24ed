// Command ipdocket is the docketing platform CLI: it serves the API, runs
// the intake worker, manages migrations and inspects the rule table.
package main

import "github.com/ipdocket/ipdocket/internal/interfaces/cli"

func main() {
	cli.Execute()
}
