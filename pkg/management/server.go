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
	"net"
	"path"
	"strings"
	"time"

	"github.com/aclements/go-moremath/stats"
	"github.com/lab5e/flowfunk/pkg/affinity"
	"github.com/lab5e/flowfunk/pkg/affinity/metrics"
	"github.com/lab5e/flowfunk/pkg/toolbox"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server implements the management service on top of the affinity context,
// the owner table and the migration controller of a process.
type Server struct {
	ctx        *affinity.Context
	table      *affinity.OwnerTable
	controller *affinity.MigrationController
	metrics    metrics.Sink
	server     *grpc.Server
	listener   net.Listener
	serveErr   chan error
	endpoint   string
}

// NewServer creates a new management server. Call Start to serve requests.
func NewServer(ctx *affinity.Context, table *affinity.OwnerTable, controller *affinity.MigrationController, sink metrics.Sink) *Server {
	if sink == nil {
		sink = metrics.NewBlackHoleSink()
	}
	return &Server{
		ctx:        ctx,
		table:      table,
		controller: controller,
		metrics:    sink,
	}
}

// getGRPCOpts returns gRPC server options for the configuration
func getGRPCOpts(config ServerParameters) ([]grpc.ServerOption, error) {
	if !config.TLS {
		return []grpc.ServerOption{}, nil
	}
	if config.CertFile == "" || config.KeyFile == "" {
		return nil, errors.New("missing cert file and key file parameters for GRPC server")
	}
	creds, err := credentials.NewServerTLSFromFile(config.CertFile, config.KeyFile)
	if err != nil {
		return nil, err
	}
	return []grpc.ServerOption{grpc.Creds(creds)}, nil
}

// Start launches the gRPC server. The endpoint is available via Endpoint()
// when this returns.
func (s *Server) Start(config ServerParameters) error {
	opts, err := getGRPCOpts(config)
	if err != nil {
		return err
	}
	opts = append(opts, grpc.UnaryInterceptor(s.logRequest))
	s.server = grpc.NewServer(opts...)
	RegisterManagementServer(s.server, s)

	listener, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return err
	}

	// Holds a Serve error that arrives after Start has returned
	s.listener = listener
	s.serveErr = make(chan error, 1)
	go func(ch chan error) {
		if err := s.server.Serve(listener); err != nil {
			log.WithError(err).Error("Management gRPC interface stopped")
			ch <- err
		}
	}(s.serveErr)

	select {
	case err := <-s.serveErr:
		return err
	case <-time.After(250 * time.Millisecond):
		// ok
	}
	s.endpoint = listener.Addr().String()
	log.WithField("endpoint", s.endpoint).Info("Management service started")
	return nil
}

// Endpoint returns the listen address of the server
func (s *Server) Endpoint() string {
	return s.endpoint
}

// Stop stops the gRPC server
func (s *Server) Stop() {
	if s.server != nil {
		s.server.Stop()
		s.server = nil
	}
}

func (s *Server) logRequest(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	method := path.Base(info.FullMethod)
	s.metrics.LogRequest(method)
	resp, err := handler(ctx, req)
	if err != nil {
		log.WithError(err).WithField("method", method).Debug("Management request failed")
	}
	return resp, err
}

// toStatus maps the affinity errors to gRPC status codes. The error text is
// kept so clients can map it back to the sentinel.
func toStatus(err error) error {
	switch {
	case errors.Is(err, affinity.ErrProtocolMisuse):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, affinity.ErrUnknownGroup), errors.Is(err, affinity.ErrInvalidCore):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, affinity.ErrUnknownFlow):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, affinity.ErrNotInitialized):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

var sentinels = []error{
	affinity.ErrProtocolMisuse,
	affinity.ErrUnknownGroup,
	affinity.ErrInvalidCore,
	affinity.ErrUnknownFlow,
	affinity.ErrNotInitialized,
}

// fromStatus turns a gRPC error from the server into an error wrapping the
// matching affinity error.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, sentinel := range sentinels {
		if strings.HasPrefix(st.Message(), sentinel.Error()) {
			return &remoteError{sentinel: sentinel, message: st.Message()}
		}
	}
	return err
}

type remoteError struct {
	sentinel error
	message  string
}

func (r *remoteError) Error() string {
	return r.message
}

func (r *remoteError) Unwrap() error {
	return r.sentinel
}

// CurrentStatus returns the status for the process
func (s *Server) CurrentStatus() Status {
	plan := s.ctx.Plan()
	perCore := s.table.CountByCore()
	groupsPerCore := make([]int, s.ctx.Cores())
	for _, core := range plan.Snapshot() {
		groupsPerCore[core]++
	}
	sample := stats.Sample{Xs: make([]float64, len(perCore))}
	for i, n := range perCore {
		sample.Xs[i] = float64(n)
	}
	stddev := 0.0
	if len(sample.Xs) > 1 {
		stddev = sample.StdDev()
	}
	return Status{
		Cores:         s.ctx.Cores(),
		Groups:        plan.Groups(),
		Segments:      s.table.Segments(),
		Flows:         s.table.Len(),
		Generation:    s.ctx.Generation(),
		FlowsPerCore:  perCore,
		GroupsPerCore: groupsPerCore,
		FlowsMean:     sample.Mean(),
		FlowsStdDev:   stddev,
		Pending:       s.controller.Pending(),
	}
}

// Status returns the process status
func (s *Server) Status(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	ret, err := statusToStruct(s.CurrentStatus())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return ret, nil
}

// GetPlan returns the assignment plan
func (s *Server) GetPlan(ctx context.Context, req *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	buf, err := s.ctx.Plan().MarshalBinary()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(buf), nil
}

// PreMigrate starts a migration
func (s *Server) PreMigrate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	source, moves, err := structToMoves(req)
	if err != nil {
		return nil, toStatus(err)
	}
	var ms affinity.MigrationStatus
	err = toolbox.TimeCall("Pre-migration", log.Fields{"source": source, "groups": len(moves)}, func() error {
		var err error
		ms, err = s.controller.PreMigrate(source, moves)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return migrationToStruct(ms)
}

// PostMigrate completes a migration
func (s *Server) PostMigrate(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.Struct, error) {
	ms, err := s.controller.PostMigrate(int(req.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return migrationToStruct(ms)
}
