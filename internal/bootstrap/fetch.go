package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

const defaultFetchTimeout = 2 * time.Minute

// InstallerURL is the regional download location of the CodeDeploy agent
// installer.
func InstallerURL(region string) string {
	return fmt.Sprintf("https://aws-codedeploy-%s.s3.%s.amazonaws.com/latest/install", region, region)
}

// Fetcher downloads a file over the network.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads with a fasthttp client.
type HTTPFetcher struct {
	Client  *fasthttp.Client
	Timeout time.Duration
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:  &fasthttp.Client{Name: "agent-bootstrap"},
		Timeout: defaultFetchTimeout,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline := time.Now().Add(f.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := f.Client.DoDeadline(req, resp, deadline); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &FetchError{URL: url, Status: resp.StatusCode()}
	}
	// The response body is reused once resp is released.
	return append([]byte(nil), resp.Body()...), nil
}

func (f *HTTPFetcher) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return defaultFetchTimeout
}
