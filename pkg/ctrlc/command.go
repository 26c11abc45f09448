package ctrlc

import (
	"errors"
	"time"

	"github.com/lab5e/flowfunk/pkg/management"
)

// CommandList contains all of the commands for the flowctl utility
type CommandList struct {
	Status   StatusCommand   `kong:"cmd,help='Show the dataplane status'"`
	Plan     PlanCommand     `kong:"cmd,help='Show the assignment plan'"`
	Migrate  MigrateCommand  `kong:"cmd,help='Move flow groups away from a core (pre-migration)'"`
	Finish   FinishCommand   `kong:"cmd,help='Complete the migration for a core (post-migration)'"`
	Discover DiscoverCommand `kong:"cmd,help='List management endpoints announced via zeroconf'"`
}

// Parameters is the main parameter struct for the flowctl utility
type Parameters struct {
	Server   management.ClientParameters `kong:"embed"`
	Commands CommandList                 `kong:"embed"`
}

// RunContext is the context passed on to the subcommands
type RunContext struct {
	params Parameters
}

// NewRunContext creates a new RunContext from the parameters
func NewRunContext(params Parameters) *RunContext {
	return &RunContext{params: params}
}

// ClientParams returns the management client parameters
func (r *RunContext) ClientParams() management.ClientParameters {
	return r.params.Server
}

const gRPCTimeout = 10 * time.Second

// We won't be using the errors returned from the commands in Kong so this is
// a placeholder error that we'll return on errors
var errStd = errors.New("error")
