package command

import (
	"encoding/json"
	"os"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/songzhibin97/workflow-engine/loader"
)

var Register = cli.Command{
	Name:  "register",
	Usage: "decode, validate, and register a definition document",
	Flags: []cli.Flag{
		&cli.PathFlag{Name: "file", Aliases: []string{"f"}, Usage: "definition document, in JSON format", Required: true},
	},
	Action: func(c *cli.Context) error {
		doc, err := readDocument(c.Path("file"))
		if err != nil {
			return err
		}

		def, err := loader.Decode(doc)
		if err != nil {
			return errors.Wrap(err, "decoding definition document")
		}

		fab, err := sharedFabric()
		if err != nil {
			return err
		}

		registered, err := fab.RegisterDefinition(c.Context, def)
		if err != nil {
			return errors.Wrap(err, "registering definition")
		}

		clio.Successf("registered definition %d (%s)", registered.ID, registered.Name)
		return nil
	},
}

func readDocument(path string) (loader.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading definition file")
	}
	var doc loader.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing definition JSON")
	}
	return doc, nil
}
