package transport

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct

// Client calls persona.v1.PersonaService.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor

// Dial connects to a persona server.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn wraps an existing connection. Close is then a no-op.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region calls

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return fmt.Errorf("%s rpc: %w", method, apperrors.FromGRPC(err))
	}
	if err := decode(out, resp); err != nil {
		return fmt.Errorf("%s response: %w", method, err)
	}
	return nil
}

// GetState returns the user's current persona.
func (c *Client) GetState(ctx context.Context, userID string) (state.PersonaState, error) {
	var st state.PersonaState
	err := c.call(ctx, "GetState", UserRequest{UserID: userID}, &st)
	return st, err
}

// ApplyFeedback commits pre-classified events.
func (c *Client) ApplyFeedback(ctx context.Context, userID string, events ...Event) (UpdateResponse, error) {
	var resp UpdateResponse
	err := c.call(ctx, "ApplyFeedback", ApplyFeedbackRequest{UserID: userID, Events: events}, &resp)
	return resp, err
}

// Observe classifies and commits one raw observation.
func (c *Client) Observe(ctx context.Context, obs Observation) (UpdateResponse, error) {
	var resp UpdateResponse
	err := c.call(ctx, "Observe", obs, &resp)
	return resp, err
}

// RecordActivity tracks a completed action.
func (c *Client) RecordActivity(ctx context.Context, req ActivityRequest) (ActivityResponse, error) {
	var resp ActivityResponse
	err := c.call(ctx, "RecordActivity", req, &resp)
	return resp, err
}

// Targets returns the targets for the day containing at. A zero at means today.
func (c *Client) Targets(ctx context.Context, userID string, at time.Time) (TargetsResponse, error) {
	var resp TargetsResponse
	err := c.call(ctx, "Targets", UserRequest{UserID: userID, At: at}, &resp)
	return resp, err
}

// Rank orders candidate actions for the user.
func (c *Client) Rank(ctx context.Context, userID string, candidates []Action) ([]Action, error) {
	var resp RankResponse
	err := c.call(ctx, "Rank", RankRequest{UserID: userID, Candidates: candidates}, &resp)
	return resp.Actions, err
}

// History returns up to limit recent update records. limit <= 0 means all.
func (c *Client) History(ctx context.Context, userID string, limit int) ([]state.UpdateRecord, error) {
	var resp HistoryResponse
	err := c.call(ctx, "History", UserRequest{UserID: userID, Limit: limit}, &resp)
	return resp.Records, err
}

// Onboard stores the user's initial persona derived from history.
func (c *Client) Onboard(ctx context.Context, req OnboardRequest) (state.PersonaState, error) {
	var st state.PersonaState
	err := c.call(ctx, "Onboard", req, &st)
	return st, err
}

// Explain renders the persona in lang with its last limit changes.
func (c *Client) Explain(ctx context.Context, userID, lang string, limit int) (ExplainResponse, error) {
	var resp ExplainResponse
	err := c.call(ctx, "Explain", ExplainRequest{UserID: userID, Lang: lang, Limit: limit}, &resp)
	return resp, err
}

// #endregion calls
