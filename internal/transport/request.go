package transport

import (
	"context"
	"net/http"
	"net/url"
)

// Request ...
type Request struct {
	Context  context.Context
	Method   string
	Endpoint string
	Values   url.Values
	Body     interface{}
}

// Response is the fully read reply of one request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
