package ctrlc

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// StatusCommand is a subcommand for the flowctl CLI.
type StatusCommand struct {
}

// Run executes the status operation
func (c *StatusCommand) Run(args *RunContext) error {
	client, conn := connectToManagement(args.ClientParams())
	if client == nil {
		return errStd
	}
	defer conn.Close()

	ctx, done := context.WithTimeout(context.Background(), gRPCTimeout)
	defer done()
	res, err := client.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving status: %v\n", err)
		return errStd
	}
	fmt.Printf("Cores:        %d\n", res.Cores)
	fmt.Printf("Groups:       %d\n", res.Groups)
	fmt.Printf("Flows:        %d (%d segments)\n", res.Flows, res.Segments)
	fmt.Printf("Flows/core:   %.1f mean, %.1f stddev\n", res.FlowsMean, res.FlowsStdDev)
	fmt.Printf("Generation:   %d\n", res.Generation)
	fmt.Println()

	table := tabwriter.NewWriter(os.Stdout, 1, 3, 1, ' ', 0)
	table.Write([]byte("Core\tGroups\tFlows\tPercent\n"))
	for core := 0; core < res.Cores; core++ {
		pct := 0.0
		if res.Flows > 0 {
			pct = float64(res.FlowsPerCore[core]) / float64(res.Flows) * 100.0
		}
		table.Write([]byte(fmt.Sprintf("%d\t%d\t%d\t(%3.1f%%)\n", core, res.GroupsPerCore[core], res.FlowsPerCore[core], pct)))
	}
	table.Flush()

	if len(res.Pending) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println("Draining migrations:")
	table = tabwriter.NewWriter(os.Stdout, 1, 3, 1, ' ', 0)
	table.Write([]byte("Source\tEpoch\tGroups\tRecords\tAge\n"))
	for _, m := range res.Pending {
		table.Write([]byte(fmt.Sprintf("%d\t%d\t%d\t%d\t%s\n", m.Source, m.Epoch, len(m.Moves), m.Moved, time.Since(m.Started).Round(time.Second))))
	}
	table.Flush()
	return nil
}
