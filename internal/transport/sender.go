package transport

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RestySender sends requests to the backend. Every call carries its own
// request id so server logs can be matched with ours.
type RestySender struct {
	client  *resty.Client
	timeout time.Duration
}

func NewRestySender(baseURL, userAgent string, timeout time.Duration) *RestySender {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if userAgent != "" {
		c.SetHeader("User-Agent", userAgent)
	}
	return &RestySender{client: c, timeout: timeout}
}

// Send method sends requests to the backend API
func (s *RestySender) Send(req Request) (*Response, error) {
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := s.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
	if req.Values != nil {
		r.SetQueryParamsFromValues(req.Values)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.Endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.Endpoint)
	}
	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}
