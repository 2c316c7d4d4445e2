package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/songzhibin97/workflow-engine/types"
)

var Status = cli.Command{
	Name:  "status",
	Usage: "print the status summary of a running workflow",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "workflow", Aliases: []string{"w"}, Usage: "workflow id", Required: true},
	},
	Action: func(c *cli.Context) error {
		fab, err := sharedFabric()
		if err != nil {
			return err
		}

		eng, ok := fab.Engine(c.Uint64("workflow"))
		if !ok {
			return types.ErrWorkflowNotFound
		}

		s := eng.GetStatus()
		fmt.Printf("workflow=%d status=%s active=%d completed=%d nodes=%d\n",
			s.WorkflowID, s.Status, s.ActiveCount, s.CompletedCount, s.NodeCount)
		return nil
	},
}
