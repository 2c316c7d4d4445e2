package command

import (
	"os"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/songzhibin97/workflow-engine/loader"
	"github.com/songzhibin97/workflow-engine/types"
)

// Graph renders a definition document's node graph as Graphviz DOT, the
// external visualizer spec.md §1 carves out of the execution core: the
// core never imports a rendering package, but the CLI can still offer one.
var Graph = cli.Command{
	Name:  "graph",
	Usage: "render a definition document's node graph as Graphviz DOT",
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
		if err := loader.Validate(def); err != nil {
			return errors.Wrap(err, "invalid definition")
		}

		g := graph.New(func(n types.NodeSpec) string { return n.ID }, graph.Directed())
		for _, n := range def.Nodes {
			if err := g.AddVertex(n); err != nil {
				return err
			}
		}
		for _, n := range def.Nodes {
			for _, next := range n.NextNodes {
				if err := g.AddEdge(n.ID, next); err != nil {
					return err
				}
			}
		}

		return draw.DOT(g, os.Stdout)
	},
}
