package grpcPack

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the walstore.KeyValueStore service over an existing
// connection using the JSON codec.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.conn.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(codecName))
}

// Get returns the value stored under key
func (c *Client) Get(ctx context.Context, key string) (json.RawMessage, error) {
	out := new(GetResponse)
	if err := c.invoke(ctx, "Get", &GetRequest{Key: key}, out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// Put stores value under key and returns the log sequence number
func (c *Client) Put(ctx context.Context, txnID, key string, value json.RawMessage) (uint64, error) {
	out := new(PutResponse)
	if err := c.invoke(ctx, "Put", &PutRequest{Key: key, Value: value, TransactionID: txnID}, out); err != nil {
		return 0, err
	}
	return out.Sequence, nil
}

// Delete removes key
func (c *Client) Delete(ctx context.Context, txnID, key string) (uint64, bool, error) {
	out := new(DeleteResponse)
	if err := c.invoke(ctx, "Delete", &DeleteRequest{Key: key, TransactionID: txnID}, out); err != nil {
		return 0, false, err
	}
	return out.Sequence, out.Deleted, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
