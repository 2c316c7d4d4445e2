// Package command holds the urfave/cli command tree for the
// workflow-engine binary, grounded on the common-fate-glide-framework's own
// cmd/command package: one file per subcommand, each reading flags off
// *cli.Context and delegating to the library packages.
package command

import (
	"sync"
	"time"

	"github.com/songzhibin97/gkit/generator"

	"github.com/songzhibin97/workflow-engine/fabric"
	"github.com/songzhibin97/workflow-engine/registry"
	"github.com/songzhibin97/workflow-engine/rules"
	"github.com/songzhibin97/workflow-engine/storage"
)

var (
	fabricOnce sync.Once
	sharedFab  *fabric.Fabric
	sharedErr  error
)

// sharedFabric lazily builds the one Fabric this CLI process uses for every
// command invocation. State lives only in memory for the lifetime of the
// process — a real deployment would point Defs/Execs at RedisStore instead.
func sharedFabric() (*fabric.Fabric, error) {
	fabricOnce.Do(func() {
		mem := storage.NewMemoryStore()
		sharedFab, sharedErr = fabric.New(fabric.Config{
			Generate:  generator.NewSnowflake(time.Now().Add(-1*time.Second), 1),
			Callables: registry.New(),
			Evaluator: rules.NewExprEvaluator(),
			Defs:      mem,
			Execs:     mem,
		})
	})
	return sharedFab, sharedErr
}
