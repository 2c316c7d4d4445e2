package command

import (
	"encoding/json"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var Spawn = cli.Command{
	Name:  "spawn",
	Usage: "start a new execution of a registered definition",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "definition", Aliases: []string{"d"}, Usage: "definition id", Required: true},
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "initial token data, in JSON format", Value: "{}"},
	},
	Action: func(c *cli.Context) error {
		var initialData map[string]interface{}
		if err := json.Unmarshal([]byte(c.String("input")), &initialData); err != nil {
			return errors.Wrap(err, "parsing --input as JSON")
		}

		fab, err := sharedFabric()
		if err != nil {
			return err
		}

		eng, tok, err := fab.Spawn(c.Context, c.Uint64("definition"), initialData)
		if err != nil {
			return errors.Wrap(err, "spawning execution")
		}

		status := eng.GetStatus()
		clio.Successf("workflow %d started, token %s, status %s", status.WorkflowID, tok.ID, status.Status)
		return nil
	},
}
