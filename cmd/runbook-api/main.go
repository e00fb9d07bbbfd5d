// Command runbook-api runs the runbook execution engine, as an HTTP API
// server or as a direct CLI against a runbooks directory.
package main

import "github.com/ethpandaops/runbook-engine/cmd/runbook-api/cmd"

func main() {
	cmd.Execute()
}
