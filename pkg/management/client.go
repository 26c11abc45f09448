package management

//
//Copyright 2019 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lab5e/flowfunk/pkg/affinity"
	"github.com/lab5e/flowfunk/pkg/toolbox"
	"github.com/lab5e/gotoolbox/grpcutil"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ZeroconfKind is the zeroconf kind used when announcing management endpoints
const ZeroconfKind = "management"

// Client is a typed client for the management service. Errors returned by
// the server wrap the same affinity errors as the local calls.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a client on top of an existing connection
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Connect is a convenience function to get a management client directly. If
// zeroconf is enabled and no endpoint is set the first announced endpoint for
// the deployment name is used. The returned connection must be closed by the
// caller.
func Connect(params ClientParameters) (*Client, *grpc.ClientConn, error) {
	if params.Endpoint == "" && params.Zeroconf {
		if params.Name == "" {
			return nil, nil, errors.New("needs a deployment name if zeroconf is to be used for discovery")
		}
		zr := toolbox.NewZeroconfRegistry(params.Name)
		ep, err := zr.ResolveFirst(ZeroconfKind, 1*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("zeroconf lookup error when searching for %s: %v", params.Name, err)
		}
		params.Endpoint = ep
	}

	if params.Endpoint == "" {
		return nil, nil, errors.New("need a management endpoint")
	}

	grpcParams := grpcutil.GRPCClientParam{
		ServerEndpoint:     params.Endpoint,
		TLS:                params.TLS,
		CAFile:             params.CertFile,
		ServerHostOverride: params.HostnameOverride,
	}
	opts, err := grpcutil.GetDialOpts(grpcParams)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create gRPC dial options: %v", err)
	}
	conn, err := grpc.Dial(grpcParams.ServerEndpoint, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("could not dial management endpoint %s: %v", params.Endpoint, err)
	}
	return NewClient(conn), conn, nil
}

// Status returns the status of the dataplane
func (c *Client) Status(ctx context.Context) (Status, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, StatusMethod, &emptypb.Empty{}, out); err != nil {
		return Status{}, fromStatus(err)
	}
	return structToStatus(out), nil
}

// Plan returns a copy of the current assignment plan
func (c *Client) Plan(ctx context.Context) (*affinity.Plan, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, GetPlanMethod, &emptypb.Empty{}, out); err != nil {
		return nil, fromStatus(err)
	}
	plan := &affinity.Plan{}
	if err := plan.UnmarshalBinary(out.GetValue()); err != nil {
		return nil, err
	}
	return plan, nil
}

// PreMigrate moves the groups away from the source core
func (c *Client) PreMigrate(ctx context.Context, source int, moves []affinity.Move) (affinity.MigrationStatus, error) {
	in, err := movesToStruct(source, moves)
	if err != nil {
		return affinity.MigrationStatus{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, PreMigrateMethod, in, out); err != nil {
		return affinity.MigrationStatus{}, fromStatus(err)
	}
	return structToMigration(out), nil
}

// PostMigrate completes the migration for the source core
func (c *Client) PostMigrate(ctx context.Context, source int) (affinity.MigrationStatus, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, PostMigrateMethod, wrapperspb.Int32(int32(source)), out); err != nil {
		return affinity.MigrationStatus{}, fromStatus(err)
	}
	return structToMigration(out), nil
}
