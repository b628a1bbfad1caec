// Command logstorectl runs and inspects the log-backed storage engine.
package main

import (
	"fmt"
	"os"

	"github.com/clustersched/logstorage/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
