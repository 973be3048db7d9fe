package bootstrap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serveInMemory(t *testing.T, handler fasthttp.RequestHandler) *HTTPFetcher {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go srv.Serve(ln) //nolint:errcheck
	t.Cleanup(func() { _ = ln.Close() })

	return &HTTPFetcher{
		Client: &fasthttp.Client{
			Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
		},
		Timeout: 5 * time.Second,
	}
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	fetcher := serveInMemory(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/latest/install" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		ctx.SetBodyString("#!/usr/bin/env ruby\n")
	})

	body, err := fetcher.Fetch(context.Background(), "http://installer.local/latest/install")
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/env ruby\n", string(body))
}

func TestHTTPFetcher_BadStatus(t *testing.T) {
	fetcher := serveInMemory(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
	})

	_, err := fetcher.Fetch(context.Background(), "http://installer.local/latest/install")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fasthttp.StatusForbidden, fe.Status)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestInstallerURL(t *testing.T) {
	assert.Equal(t,
		"https://aws-codedeploy-us-east-1.s3.us-east-1.amazonaws.com/latest/install",
		InstallerURL("us-east-1"))
}
