package ctrlc

import (
	"fmt"
	"os"

	"github.com/lab5e/flowfunk/pkg/management"
	"google.golang.org/grpc"
)

// connectToManagement returns a client and the connection to close or nil if
// the connection failed. Errors are printed.
func connectToManagement(params management.ClientParameters) (*management.Client, *grpc.ClientConn) {
	client, conn, err := management.Connect(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not connect to the management service: %v\n", err)
		return nil, nil
	}
	return client, conn
}
