package grpcPack

import (
	"context"
	"encoding/json"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	kvErr "github.com/sajjad-MoBe/walstore/internal/errors"
	"github.com/sajjad-MoBe/walstore/internal/shared"
)

const maxKeyLength = 1024

// KeyValueStore is the store surface exposed over gRPC
type KeyValueStore interface {
	Put(ctx context.Context, txnID, key string, value json.RawMessage) (uint64, error)
	Delete(ctx context.Context, txnID, key string) (uint64, bool, error)
	Get(key string) (json.RawMessage, bool)
}

// Server implements the KeyValueStore gRPC service
type Server struct {
	store      KeyValueStore
	logger     *shared.Logger
	grpcServer *grpc.Server
}

// NewServer creates a gRPC server with the error and logging interceptors
// installed and the service registered.
func NewServer(store KeyValueStore, logger *shared.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = shared.DefaultLogger
	}
	s := &Server{
		store:  store,
		logger: logger.WithFields(map[string]interface{}{"component": "grpc"}),
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(
		UnaryLoggingInterceptor(s.logger),
		UnaryErrorInterceptor,
	))
	s.grpcServer = grpc.NewServer(opts...)
	RegisterKeyValueStoreServer(s.grpcServer, s)
	return s
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening on %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// Start listens on addr and serves
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Stop waits for in-flight calls and stops the server
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// validateKey validates a key
func validateKey(key string) error {
	if key == "" {
		return kvErr.New(kvErr.ErrorTypeInvalidInput, "key cannot be empty", nil)
	}
	if len(key) > maxKeyLength {
		return kvErr.New(kvErr.ErrorTypeInvalidInput, "key too long", nil)
	}
	return nil
}

// Get implements the Get RPC method
func (s *Server) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, status.Error(codes.Canceled, "request canceled")
	}

	value, ok := s.store.Get(req.Key)
	if !ok {
		return nil, kvErr.New(kvErr.ErrorTypeNotFound, "key "+req.Key+" not found", nil)
	}
	return &GetResponse{Key: req.Key, Value: value}, nil
}

// Put implements the Put RPC method
func (s *Server) Put(ctx context.Context, req *PutRequest) (*PutResponse, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}

	seq, err := s.store.Put(ctx, req.TransactionID, req.Key, req.Value)
	if err != nil {
		return nil, err
	}
	return &PutResponse{Sequence: seq}, nil
}

// Delete implements the Delete RPC method
func (s *Server) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}

	seq, deleted, err := s.store.Delete(ctx, req.TransactionID, req.Key)
	if err != nil {
		return nil, err
	}
	return &DeleteResponse{Sequence: seq, Deleted: deleted}, nil
}
