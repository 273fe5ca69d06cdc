// Package inspect exposes a Store read-only over Connect RPC. Messages are
// protobuf well-known types, so no generated code is needed on either side:
//
//	List    Int32Value (limit, 0 = all) -> ListValue of metadata structs
//	GetMeta StringValue (id)            -> Struct
//	Get     StringValue (id)            -> BytesValue (raw stored bytes)
//
// Metadata structs carry "id", "name", "created_at", "modified_at" and
// "updated_at" (when the label last changed), timestamps in RFC 3339.
package inspect

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tailored-agentic-units/filecache/identity"
	"github.com/tailored-agentic-units/filecache/store"
)

// ServiceName is the fully-qualified name of the inspect service.
const ServiceName = "filecache.inspect.v1.InspectService"

const (
	ListProcedure    = "/" + ServiceName + "/List"
	GetMetaProcedure = "/" + ServiceName + "/GetMeta"
	GetProcedure     = "/" + ServiceName + "/Get"
)

var errNotFound = errors.New("entry not found")

// Server answers inspect RPCs from a Store.
type Server struct {
	store *store.Store
}

func NewServer(st *store.Store) *Server {
	return &Server{store: st}
}

// NewHandler builds an HTTP handler serving every inspect procedure. It
// returns the path prefix to mount the handler on.
func NewHandler(st *store.Store, opts ...connect.HandlerOption) (string, http.Handler) {
	s := NewServer(st)

	mux := http.NewServeMux()
	mux.Handle(ListProcedure, connect.NewUnaryHandler(ListProcedure, s.List, opts...))
	mux.Handle(GetMetaProcedure, connect.NewUnaryHandler(GetMetaProcedure, s.GetMeta, opts...))
	mux.Handle(GetProcedure, connect.NewUnaryHandler(GetProcedure, s.Get, opts...))
	return "/" + ServiceName + "/", mux
}

// List returns metadata for stored entries, most recently modified first.
func (s *Server) List(ctx context.Context, req *connect.Request[wrapperspb.Int32Value]) (*connect.Response[structpb.ListValue], error) {
	limit := req.Msg.GetValue()
	if limit < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("limit must not be negative"))
	}

	metas, err := s.store.LoadMeta(ctx, int(limit))
	if err != nil {
		return nil, storeError(err)
	}

	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(metas))}
	for _, m := range metas {
		st, err := metaStruct(m)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(st))
	}
	return connect.NewResponse(list), nil
}

func (s *Server) GetMeta(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	m, err := s.lookup(ctx, req.Msg.GetValue())
	if err != nil {
		return nil, err
	}

	st, err := metaStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

func (s *Server) Get(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[wrapperspb.BytesValue], error) {
	m, err := s.lookup(ctx, req.Msg.GetValue())
	if err != nil {
		return nil, err
	}

	value, ok, err := s.store.Retrieve(ctx, m.Identity())
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errNotFound)
	}
	return connect.NewResponse(wrapperspb.Bytes(value)), nil
}

func (s *Server) lookup(ctx context.Context, raw string) (*store.Metadata, error) {
	id, err := identity.Parse(raw)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	m, ok, err := s.store.Lookup(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errNotFound)
	}
	return m, nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotSetup):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, store.ErrCorruptMetadata):
		return connect.NewError(connect.CodeDataLoss, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func metaStruct(m *store.Metadata) (*structpb.Struct, error) {
	src := m.Source()
	return structpb.NewStruct(map[string]any{
		"id":          src.Identity.ID.String(),
		"name":        src.Identity.Name,
		"created_at":  src.CreatedAt.Format(time.RFC3339Nano),
		"modified_at": src.ModifiedAt.Format(time.RFC3339Nano),
		"updated_at":  src.Identity.UpdatedAt.Format(time.RFC3339Nano),
	})
}
