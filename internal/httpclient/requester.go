package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/barrage/internal/tracing"
)

const (
	// ClientHeader carries the per-worker client identifier.
	ClientHeader = "X-Barrage-Client"

	maxErrorBodyBytes = 1024
	maxDrainBytes     = 4 << 20
)

// HTTPError reports a response outside the 2xx range.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// RequestBuilder produces identical GET requests for one worker.
type RequestBuilder struct {
	target   string
	clientID string
	headers  http.Header
}

// NewRequestBuilder prepares the request template for workerID. Every worker
// gets its own random client identifier.
func NewRequestBuilder(target string, workerID int) (*RequestBuilder, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	if _, err := http.NewRequest(http.MethodGet, target, nil); err != nil {
		return nil, fmt.Errorf("target URL: %w", err)
	}

	clientID := uuid.NewString()
	headers := http.Header{}
	headers.Set("User-Agent", "barrage/"+strconv.Itoa(workerID))
	headers.Set(ClientHeader, clientID)
	headers.Set("Accept", "*/*")
	headers.Set("Connection", "keep-alive")

	return &RequestBuilder{target: target, clientID: clientID, headers: headers}, nil
}

// ClientID returns the identifier sent in ClientHeader.
func (b *RequestBuilder) ClientID() string { return b.clientID }

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.target, nil)
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()
	return req, nil
}

// Requester issues the builder's request with client. It satisfies
// worker.Requester.
type Requester struct {
	client    *http.Client
	builder   *RequestBuilder
	tracer    trace.Tracer
	propagate bool
}

// RequesterOption customizes a Requester.
type RequesterOption func(*Requester)

// WithTracer wraps every request in a client span. When propagate is set the
// trace context is injected into the request headers.
func WithTracer(tracer trace.Tracer, propagate bool) RequesterOption {
	return func(r *Requester) {
		if tracer != nil {
			r.tracer = tracer
		}
		r.propagate = propagate
	}
}

func NewRequester(client *http.Client, builder *RequestBuilder, opts ...RequesterOption) *Requester {
	r := &Requester{
		client:  client,
		builder: builder,
		tracer:  noop.NewTracerProvider().Tracer("barrage"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do performs one GET. Transport errors and non-2xx responses are returned
// as errors; the body is drained so the connection can be reused.
func (r *Requester) Do(ctx context.Context) (err error) {
	ctx, span := tracing.StartRequestSpan(ctx, r.tracer, "http", r.builder.target)
	var status int
	defer func() {
		var attrs []attribute.KeyValue
		if status != 0 {
			attrs = append(attrs, attribute.Int("http.response.status_code", status))
		}
		tracing.EndSpan(span, err, attrs...)
	}()

	req, err := r.builder.Build(ctx)
	if err != nil {
		return err
	}
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if status < 200 || status >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		return &HTTPError{StatusCode: status, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	return nil
}
