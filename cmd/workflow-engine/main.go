// Command workflow-engine is a demo/ops CLI over the fabric and loader
// packages, grounded on common-fate-glide-framework's cmd/main.go: a
// urfave/cli App with one subcommand per operation, none of which the
// execution core depends on.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/songzhibin97/workflow-engine/cmd/workflow-engine/command"
)

func main() {
	app := &cli.App{
		Name:  "workflow-engine",
		Usage: "register, spawn, and operate workflow-engine definitions",
		Commands: []*cli.Command{
			&command.Register,
			&command.Spawn,
			&command.Status,
			&command.Waiting,
			&command.Complete,
			&command.Graph,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
