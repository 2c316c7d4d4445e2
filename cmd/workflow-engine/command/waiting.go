package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/songzhibin97/workflow-engine/types"
)

var Waiting = cli.Command{
	Name:  "waiting",
	Usage: "list tokens currently paused at a user or manual activity",
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

		for _, w := range eng.ListWaiting() {
			fmt.Printf("node=%s token=%s data=%v\n", w.NodeID, w.Token.ID, w.Token.Data)
		}
		return nil
	},
}
