package transport

import (
	"context"
	"net/http"
	"net/url"
)

// Sender interface
type Sender interface {
	Send(req Request) (*Response, error)
}

// Client is upper level class which delegate all work to Sender
type Client struct {
	sender Sender
}

func NewClient(sender Sender) *Client {
	return &Client{sender: sender}
}

// Get Method loads data from Endpoint with specified parameters
func (c *Client) Get(ctx context.Context, endpoint string, parameters url.Values) (*Response, error) {
	return c.sender.Send(Request{
		Context:  ctx,
		Method:   http.MethodGet,
		Endpoint: endpoint,
		Values:   parameters,
	})
}

// Post Method usually creates new instances
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.sender.Send(Request{
		Context:  ctx,
		Method:   http.MethodPost,
		Endpoint: endpoint,
		Body:     body,
	})
}

// Put Method usually update existing instances
func (c *Client) Put(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.sender.Send(Request{
		Context:  ctx,
		Method:   http.MethodPut,
		Endpoint: endpoint,
		Body:     body,
	})
}
