package command

import (
	"encoding/json"

	"github.com/common-fate/clio"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/songzhibin97/workflow-engine/types"
)

var Complete = cli.Command{
	Name:  "complete",
	Usage: "resume a waiting user or manual activity",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "workflow", Aliases: []string{"w"}, Usage: "workflow id", Required: true},
		&cli.StringFlag{Name: "node", Aliases: []string{"n"}, Usage: "node id the token is waiting at", Required: true},
		&cli.StringFlag{Name: "token", Aliases: []string{"t"}, Usage: "token id", Required: true},
		&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "user data to merge, in JSON format", Value: "{}"},
	},
	Action: func(c *cli.Context) error {
		tokenID, err := uuid.Parse(c.String("token"))
		if err != nil {
			return errors.Wrap(err, "parsing --token as a uuid")
		}

		var userData map[string]interface{}
		if err := json.Unmarshal([]byte(c.String("data")), &userData); err != nil {
			return errors.Wrap(err, "parsing --data as JSON")
		}

		fab, err := sharedFabric()
		if err != nil {
			return err
		}

		eng, ok := fab.Engine(c.Uint64("workflow"))
		if !ok {
			return types.ErrWorkflowNotFound
		}

		tok, err := eng.CompleteActivity(c.Context, c.String("node"), tokenID, userData)
		if err != nil {
			return errors.Wrap(err, "completing activity")
		}

		clio.Successf("token %s resumed, data now %v", tok.ID, tok.Data)
		return nil
	},
}
