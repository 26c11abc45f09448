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

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the gRPC service name
const ServiceName = "flowfunk.Management"

// Full method names
const (
	StatusMethod      = "/" + ServiceName + "/Status"
	GetPlanMethod     = "/" + ServiceName + "/GetPlan"
	PreMigrateMethod  = "/" + ServiceName + "/PreMigrate"
	PostMigrateMethod = "/" + ServiceName + "/PostMigrate"
)

// ManagementServer is the server side of the management service
type ManagementServer interface {
	// Status returns the table and migration status
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetPlan returns the binary assignment plan
	GetPlan(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	// PreMigrate starts a migration. The request holds the source core and
	// the list of moves.
	PreMigrate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// PostMigrate completes the migration for a source core
	PostMigrate(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
}

// RegisterManagementServer registers the service with a gRPC server
func RegisterManagementServer(s *grpc.Server, srv ManagementServer) {
	s.RegisterService(&serviceDesc, srv)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ManagementServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ManagementServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getPlanHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ManagementServer).GetPlan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetPlanMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ManagementServer).GetPlan(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func preMigrateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ManagementServer).PreMigrate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PreMigrateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ManagementServer).PreMigrate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func postMigrateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ManagementServer).PostMigrate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PostMigrateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ManagementServer).PostMigrate(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ManagementServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "GetPlan", Handler: getPlanHandler},
		{MethodName: "PreMigrate", Handler: preMigrateHandler},
		{MethodName: "PostMigrate", Handler: postMigrateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flowfunk/management",
}
