package inspect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Record is the client-side view of one metadata struct.
type Record struct {
	ID         string
	Name       string
	CreatedAt  time.Time
	ModifiedAt time.Time
	UpdatedAt  time.Time
}

// Client calls a remote inspect service.
type Client struct {
	list    *connect.Client[wrapperspb.Int32Value, structpb.ListValue]
	getMeta *connect.Client[wrapperspb.StringValue, structpb.Struct]
	get     *connect.Client[wrapperspb.StringValue, wrapperspb.BytesValue]
}

// NewClient builds a client for the service hosted at baseURL
// (for example, http://localhost:7070).
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		list:    connect.NewClient[wrapperspb.Int32Value, structpb.ListValue](httpClient, baseURL+ListProcedure, opts...),
		getMeta: connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+GetMetaProcedure, opts...),
		get:     connect.NewClient[wrapperspb.StringValue, wrapperspb.BytesValue](httpClient, baseURL+GetProcedure, opts...),
	}
}

// List returns up to limit records, most recently modified first. A limit of
// zero returns every record. Limits outside the int32 range fail with
// InvalidArgument without a call.
func (c *Client) List(ctx context.Context, limit int) ([]Record, error) {
	if int64(limit) > math.MaxInt32 || int64(limit) < math.MinInt32 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("limit %d out of range", limit))
	}

	res, err := c.list.CallUnary(ctx, connect.NewRequest(wrapperspb.Int32(int32(limit))))
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(res.Msg.GetValues()))
	for _, v := range res.Msg.GetValues() {
		r, err := parseRecord(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *Client) GetMeta(ctx context.Context, id string) (Record, error) {
	res, err := c.getMeta.CallUnary(ctx, connect.NewRequest(wrapperspb.String(id)))
	if err != nil {
		return Record{}, err
	}
	return parseRecord(res.Msg)
}

// Get returns the raw stored bytes for id.
func (c *Client) Get(ctx context.Context, id string) ([]byte, error) {
	res, err := c.get.CallUnary(ctx, connect.NewRequest(wrapperspb.String(id)))
	if err != nil {
		return nil, err
	}
	return res.Msg.GetValue(), nil
}

// IsNotFound reports whether err is a remote not-found answer.
func IsNotFound(err error) bool {
	return err != nil && connect.CodeOf(err) == connect.CodeNotFound
}

func parseRecord(st *structpb.Struct) (Record, error) {
	if st == nil {
		return Record{}, errors.New("inspect: empty metadata struct")
	}
	fields := st.GetFields()

	r := Record{
		ID:   fields["id"].GetStringValue(),
		Name: fields["name"].GetStringValue(),
	}

	for key, dst := range map[string]*time.Time{
		"created_at":  &r.CreatedAt,
		"modified_at": &r.ModifiedAt,
		"updated_at":  &r.UpdatedAt,
	} {
		t, err := time.Parse(time.RFC3339Nano, fields[key].GetStringValue())
		if err != nil {
			return Record{}, fmt.Errorf("inspect: %s: %w", key, err)
		}
		*dst = t
	}
	return r, nil
}
