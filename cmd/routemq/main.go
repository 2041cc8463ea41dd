// Command routemq is the framework's CLI entry point. Its run modes are
// subcommands, not flags: "routemq run" starts the main MQTT session and
// its worker supervisor, "routemq queue-work" runs a single queue worker
// loop against the configured driver, and "routemq init" prints scaffold
// guidance for a new project.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "routemq",
		Short: "MQTT route dispatch and background job execution",
	}

	root.AddCommand(runCmd(), queueWorkCmd(), initCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Print guidance for scaffolding a new routemq project",
		Long: `init is not a code generator — routemq route and job definitions are
plain Go packages registered at link time (see package loader and
package queue's Registry). This command only prints where those pieces
go:

  routes/           one file per route group, each with an init() that
                    calls loader.Register("<name>", func(t *core.RouteTable) error { ... })
  jobs/             one file per job class, each with an init() that
                    calls queue.Register("<class>", func() queue.Job { ... })
  cmd/routemq/main.go  blank-imports both packages so their init()s run

Copy an existing route or job file as a starting point.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println(cmd.Long)
			return nil
		},
	}
}
