package httpclient

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/torosent/barrage/internal/config"
)

// Options size the connection pool of a single worker's client.
type Options struct {
	Timeout             time.Duration
	MaxConnsPerHost     int
	MaxIdleConnsPerHost int
	KeepAlive           time.Duration
	MaxRedirects        int
}

// OptionsFromConfig extracts the client options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:             cfg.Timeout,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		KeepAlive:           cfg.KeepAlive,
		MaxRedirects:        cfg.MaxRedirects,
	}
}

// ErrTooManyRedirects is returned when a request exceeds Options.MaxRedirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// NewClient builds a client with its own transport. TLS certificates are not
// verified.
func NewClient(opts Options) *http.Client {
	if opts.Timeout < 0 {
		opts.Timeout = 0
	}
	if opts.MaxRedirects < 0 {
		opts.MaxRedirects = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: opts.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		MaxIdleConns:          opts.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
	}

	maxRedirects := opts.MaxRedirects
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, maxRedirects)
			}
			return nil
		},
	}
}
