package ctrlc

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// PlanCommand shows the assignment plan
type PlanCommand struct {
	Groups bool `kong:"help='List every group',short='g'"`
}

// Run shows the groups per core and optionally every group's core
func (c *PlanCommand) Run(args *RunContext) error {
	client, conn := connectToManagement(args.ClientParams())
	if client == nil {
		return errStd
	}
	defer conn.Close()

	ctx, done := context.WithTimeout(context.Background(), gRPCTimeout)
	defer done()
	plan, err := client.Plan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving plan: %v\n", err)
		return errStd
	}

	table := tabwriter.NewWriter(os.Stdout, 1, 3, 1, ' ', 0)
	if c.Groups {
		table.Write([]byte("Group\tCore\n"))
		for group, core := range plan.Snapshot() {
			table.Write([]byte(fmt.Sprintf("%d\t%d\n", group, core)))
		}
		table.Flush()
		return nil
	}

	table.Write([]byte("Core\tGroups\tPercent\n"))
	for core := 0; core < plan.Cores(); core++ {
		n := len(plan.GroupsForCore(core))
		table.Write([]byte(fmt.Sprintf("%d\t%d\t(%3.1f%%)\n", core, n, float64(n)/float64(plan.Groups())*100.0)))
	}
	table.Flush()
	fmt.Printf("\nTotal groups: %d\n", plan.Groups())
	return nil
}
