// Package transport decorates an HTTP client with the policies the users
// client leaves out: request ids, client-side rate limiting, logging and
// Prometheus metrics.
package transport

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-Id"

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options controls the decorator. Zero values disable the matching policy.
type Options struct {
	RateLimit  float64 // requests per second; 0 means unlimited
	Burst      int
	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer
}

// Client wraps a Doer.
type Client struct {
	next     Doer
	limiter  *rate.Limiter
	log      logrus.FieldLogger
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New wraps next (http.DefaultClient when nil).
func New(next Doer, opts Options) (*Client, error) {
	if next == nil {
		next = http.DefaultClient
	}
	c := &Client{next: next, log: opts.Logger}
	if c.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.log = l
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if opts.Registerer != nil {
		c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "users_client_requests_total",
			Help: "Requests sent to the users API by method and status code.",
		}, []string{"method", "code"})
		c.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "users_client_request_duration_seconds",
			Help:    "Latency of requests sent to the users API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"})
		if err := opts.Registerer.Register(c.requests); err != nil {
			return nil, err
		}
		if err := opts.Registerer.Register(c.duration); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Do applies the policies and forwards req. Errors from the wrapped Doer
// are returned as is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.NewString())
	}

	start := time.Now()
	res, err := c.next.Do(req)
	elapsed := time.Since(start)

	fields := logrus.Fields{
		"method":     req.Method,
		"url":        req.URL.Redacted(),
		"request_id": req.Header.Get(requestIDHeader),
		"duration":   elapsed.String(),
	}
	code := "error"
	if err != nil {
		c.log.WithFields(fields).WithError(err).Warn("users api request failed")
	} else {
		code = strconv.Itoa(res.StatusCode)
		fields["status"] = res.StatusCode
		c.log.WithFields(fields).Debug("users api request")
	}
	if c.requests != nil {
		c.requests.WithLabelValues(req.Method, code).Inc()
		c.duration.WithLabelValues(req.Method).Observe(elapsed.Seconds())
	}
	return res, err
}
