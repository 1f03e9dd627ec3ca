package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/cuemby/flock/pkg/kernel"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/storage"
	"github.com/cuemby/flock/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	// ErrStoreNotOpen is returned by Calculate when a range block has no store to write to
	ErrStoreNotOpen = errors.New("dedup store not open")
	// ErrGenerationMismatch is returned by Shutdown for a stale token
	ErrGenerationMismatch = errors.New("generation mismatch")
)

// StoreOpener opens a dedup store by URL
type StoreOpener func(ctx context.Context, url string) (storage.Store, error)

// Config holds worker service configuration
type Config struct {
	Kernel     kernel.Kernel
	Generation types.Generation
	// OpenStore defaults to storage.Open
	OpenStore StoreOpener
	// CPUCount overrides runtime.NumCPU, mostly for tests
	CPUCount int
}

// Server implements the worker gRPC service
type Server struct {
	kernel     kernel.Kernel
	generation types.Generation
	openStore  StoreOpener
	cpuCount   int

	mu         sync.Mutex
	store      storage.Store
	storeURL   string
	collection string
	storeRefs  int

	grpc     *grpc.Server
	done     chan struct{}
	doneOnce sync.Once
	logger   zerolog.Logger
}

// NewServer creates a new worker service
func NewServer(cfg Config) *Server {
	opener := cfg.OpenStore
	if opener == nil {
		opener = storage.Open
	}
	cpu := cfg.CPUCount
	if cpu <= 0 {
		cpu = runtime.NumCPU()
	}
	gen := cfg.Generation
	if gen.StartedAt.IsZero() {
		gen.StartedAt = time.Now()
	}
	if gen.PID == 0 {
		gen.PID = os.Getpid()
	}

	s := &Server{
		kernel:     cfg.Kernel,
		generation: gen,
		openStore:  opener,
		cpuCount:   cpu,
		done:       make(chan struct{}),
		logger:     log.WithComponent("worker").With().Str("generation", gen.Token).Str("kernel", cfg.Kernel.Name()).Logger(),
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(RequestInterceptor(s.logger)))
	RegisterWorkerServer(s.grpc, s)
	return s
}

// Start listens on addr and serves until Stop
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("Worker service listening")
	metrics.UpdateComponent("rpc", true, "")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server and releases the store
func (s *Server) Stop() {
	s.signalDone()
	s.grpc.GracefulStop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
		s.storeRefs = 0
	}
}

// Done is closed once a matching Shutdown request has been accepted
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// CPUCount returns the logical CPU count of this host
func (s *Server) CPUCount(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	return wrapperspb.Int64(int64(s.cpuCount)), nil
}

// Calculate runs the kernel on one block. Range results are written to the
// open dedup store; without a store they are refused.
func (s *Server) Calculate(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error) {
	block, err := DecodeBlock(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad block: %v", err)
	}

	s.mu.Lock()
	store, collection := s.store, s.collection
	s.mu.Unlock()

	if block.Kind == types.BlockKindRange && store == nil {
		return nil, status.Error(codes.FailedPrecondition, ErrStoreNotOpen.Error())
	}

	res, err := s.kernel.Calculate(ctx, block)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Errorf(codes.InvalidArgument, "calculate %s: %v", block, err)
	}

	if store != nil && len(res.Items) > 0 {
		if err := store.Add(ctx, collection, res.Items...); err != nil {
			metrics.UpdateComponent("store", false, err.Error())
			return nil, status.Errorf(codes.Unavailable, "store write failed: %v", err)
		}
	}

	return wrapperspb.Int64(res.Count), nil
}

// Open connects to the dedup store. Clients of one run share a single
// connection; opening a different URL while one is open is refused.
func (s *Server) Open(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	url, collection := DecodeOpen(req)
	if url == "" || collection == "" {
		return nil, status.Error(codes.InvalidArgument, "store and collection are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if s.storeURL != url || s.collection != collection {
			return nil, status.Errorf(codes.FailedPrecondition, "store already open on %s/%s", s.storeURL, s.collection)
		}
		s.storeRefs++
		return wrapperspb.Bool(s.store.Ping(ctx) == nil), nil
	}

	store, err := s.openStore(ctx, url)
	if err != nil {
		metrics.UpdateComponent("store", false, err.Error())
		return nil, status.Errorf(codes.Unavailable, "open store: %v", err)
	}

	s.store = store
	s.storeURL = url
	s.collection = collection
	s.storeRefs = 1

	healthy := store.Ping(ctx) == nil
	metrics.UpdateComponent("store", healthy, "")
	s.logger.Info().Str("store", url).Str("collection", collection).Bool("ping", healthy).Msg("Dedup store opened")
	return wrapperspb.Bool(healthy), nil
}

// CloseStore drops one reference to the dedup store and closes it at zero
func (s *Server) CloseStore(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return &emptypb.Empty{}, nil
	}

	s.storeRefs--
	if s.storeRefs > 0 {
		return &emptypb.Empty{}, nil
	}

	err := s.store.Close()
	s.store = nil
	s.storeURL = ""
	s.collection = ""
	s.storeRefs = 0
	if err != nil {
		return nil, status.Errorf(codes.Internal, "close store: %v", err)
	}
	s.logger.Info().Msg("Dedup store closed")
	return &emptypb.Empty{}, nil
}

// Generation returns the launch token of this process
func (s *Server) Generation(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return EncodeGeneration(s.generation), nil
}

// Shutdown accepts a stop request carrying this process's generation token.
// The server stops after the response is sent.
func (s *Server) Shutdown(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() != s.generation.Token {
		return nil, status.Errorf(codes.FailedPrecondition, "%v: have %q", ErrGenerationMismatch, s.generation.Token)
	}
	s.logger.Info().Msg("Shutdown requested")
	s.signalDone()
	return &emptypb.Empty{}, nil
}

// Stats returns a runtime snapshot of this worker
func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.Lock()
	storeEnabled := s.store != nil
	s.mu.Unlock()

	st := RuntimeStats()
	st.CPUCount = s.cpuCount
	st.Uptime = time.Since(s.generation.StartedAt)
	st.Kernel = s.kernel.Name()
	st.Generation = s.generation.Token
	st.StoreEnabled = storeEnabled
	return EncodeStats(st), nil
}

// RuntimeStats samples the host and Go runtime of the current process
func RuntimeStats() types.NodeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hostname, _ := os.Hostname()
	return types.NodeStats{
		Hostname:   hostname,
		CPUCount:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
		SysBytes:   mem.Sys,
	}
}
