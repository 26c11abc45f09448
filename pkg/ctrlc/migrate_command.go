package ctrlc

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lab5e/flowfunk/pkg/affinity"
)

// MigrateCommand is the pre-migration subcommand
type MigrateCommand struct {
	Source int      `kong:"arg,help='Source core'"`
	Moves  []string `kong:"arg,help='Moves on the form group:core'"`
}

// parseMoves parses a list of group:core strings
func parseMoves(list []string) ([]affinity.Move, error) {
	var ret []affinity.Move
	for _, s := range list {
		parts := strings.Split(s, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("move must be on the form group:core, not %q", s)
		}
		group, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid group in %q: %v", s, err)
		}
		core, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid core in %q: %v", s, err)
		}
		ret = append(ret, affinity.Move{Group: uint32(group), To: core})
	}
	return ret, nil
}

func printMigration(m affinity.MigrationStatus) {
	fmt.Printf("Source core:  %d\n", m.Source)
	fmt.Printf("State:        %s\n", m.State)
	fmt.Printf("Epoch:        %d\n", m.Epoch)
	fmt.Printf("Records:      %d\n", m.Moved)
	for _, mv := range m.Moves {
		fmt.Printf("  group %d -> core %d\n", mv.Group, mv.To)
	}
}

// Run starts the migration
func (c *MigrateCommand) Run(args *RunContext) error {
	moves, err := parseMoves(c.Moves)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return errStd
	}
	client, conn := connectToManagement(args.ClientParams())
	if client == nil {
		return errStd
	}
	defer conn.Close()

	ctx, done := context.WithTimeout(context.Background(), gRPCTimeout)
	defer done()
	res, err := client.PreMigrate(ctx, c.Source, moves)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pre-migration rejected: %v\n", err)
		return errStd
	}
	printMigration(res)
	fmt.Printf("\nCore %d is draining. Run finish %d when its queue is empty.\n", res.Source, res.Source)
	return nil
}

// FinishCommand is the post-migration subcommand
type FinishCommand struct {
	Source int `kong:"arg,help='Source core'"`
}

// Run completes the migration
func (c *FinishCommand) Run(args *RunContext) error {
	client, conn := connectToManagement(args.ClientParams())
	if client == nil {
		return errStd
	}
	defer conn.Close()

	ctx, done := context.WithTimeout(context.Background(), gRPCTimeout)
	defer done()
	res, err := client.PostMigrate(ctx, c.Source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Post-migration rejected: %v\n", err)
		return errStd
	}
	printMigration(res)
	return nil
}
