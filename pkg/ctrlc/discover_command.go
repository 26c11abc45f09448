package ctrlc

import (
	"fmt"
	"os"
	"time"

	"github.com/lab5e/flowfunk/pkg/management"
	"github.com/lab5e/flowfunk/pkg/toolbox"
)

// DiscoverCommand lists the management endpoints announced via zeroconf
type DiscoverCommand struct {
	Wait time.Duration `kong:"help='Time to listen for announcements',default='3s'"`
}

// Run lists the endpoints
func (c *DiscoverCommand) Run(args *RunContext) error {
	name := args.ClientParams().Name
	fmt.Printf("Zeroconf lookup for %s (%s)...\n", name, c.Wait)
	zr := toolbox.NewZeroconfRegistry(name)
	endpoints, err := zr.Resolve(management.ZeroconfKind, c.Wait)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error browsing zeroconf: %v\n", err)
		return errStd
	}
	if len(endpoints) == 0 {
		fmt.Println("No endpoints found")
		return nil
	}
	for _, ep := range endpoints {
		fmt.Println(ep)
	}
	return nil
}
