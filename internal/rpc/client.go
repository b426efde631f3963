package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client - тонкий клиент сервиса задач поверх jsonCodec
type Client struct {
	conn  grpc.ClientConnInterface
	token string
}

func NewClient(conn grpc.ClientConnInterface, token string) *Client {
	return &Client{conn: conn, token: token}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) GetTask(ctx context.Context, req *GetTaskRequest) (*TaskResponse, error) {
	out := new(TaskResponse)
	if err := c.invoke(ctx, "GetTask", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TransitionStatus(ctx context.Context, req *TransitionStatusRequest) (*TaskResponse, error) {
	out := new(TaskResponse)
	if err := c.invoke(ctx, "TransitionStatus", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AssignResource(ctx context.Context, req *AssignResourceRequest) (*AssignResourceResponse, error) {
	out := new(AssignResourceResponse)
	if err := c.invoke(ctx, "AssignResource", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddNote(ctx context.Context, req *AddNoteRequest) (*TaskResponse, error) {
	out := new(TaskResponse)
	if err := c.invoke(ctx, "AddNote", req, out); err != nil {
		return nil, err
	}
	return out, nil
}
