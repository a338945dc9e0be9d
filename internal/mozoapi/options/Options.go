package options

import (
	"net/url"
	"time"

	"github.com/google/go-querystring/query"
)

const DateLayout = "2006-01-02"

// ListQuery is the filter accepted by the list endpoints.
type ListQuery struct {
	Date  string `url:"fecha"`
	Table string `url:"mesa,omitempty"`
}

type Option func(*ListQuery)

func Date(value time.Time) Option {
	return func(q *ListQuery) {
		q.Date = value.Format(DateLayout)
	}
}

func Table(id string) Option {
	return func(q *ListQuery) {
		q.Table = id
	}
}

// Values applies opts over a query for today.
func Values(now time.Time, opts ...Option) (url.Values, error) {
	q := &ListQuery{Date: now.Format(DateLayout)}
	for _, opt := range opts {
		opt(q)
	}
	return query.Values(q)
}
