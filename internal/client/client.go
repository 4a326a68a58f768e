package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/uibridge/cdpgate/internal/shared/types"
)

// Client talks to a gate's discovery surface and dials its page sockets.
type Client struct {
	resty  *resty.Client
	dialer *websocket.Dialer
	addr   string
}

// New creates a client for the gate at addr (host:port).
func New(addr string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetBaseURL("http://"+addr).
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "CDPGate-Client/1.0")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	return &Client{
		resty: restyClient,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		addr: addr,
	}
}

// Version fetches the gate's identity document.
func (c *Client) Version(ctx context.Context) (*types.VersionInfo, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(&types.VersionInfo{}).
		Get("/json/version")
	if err != nil {
		return nil, fmt.Errorf("fetch version: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch version: unexpected status %s", resp.Status())
	}
	return resp.Result().(*types.VersionInfo), nil
}

// List fetches the debuggable page listing.
func (c *Client) List(ctx context.Context) ([]types.PageEntry, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(&[]types.PageEntry{}).
		Get("/json/list")
	if err != nil {
		return nil, fmt.Errorf("fetch page list: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch page list: unexpected status %s", resp.Status())
	}
	return *resp.Result().(*[]types.PageEntry), nil
}

// WaitReady polls the discovery surface until the gate answers or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, err := c.Version(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("gate not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// DialPage opens a WebSocket session for the given page id. Ids containing
// reserved characters are escaped the same way the gate advertises them.
func (c *Client) DialPage(ctx context.Context, pageID types.PageID) (*websocket.Conn, error) {
	u := "ws://" + c.addr + "/ws/" + url.PathEscape(string(pageID))
	return c.dial(ctx, u)
}

// Dial opens a WebSocket session on an advertised webSocketDebuggerUrl.
func (c *Client) Dial(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	return c.dial(ctx, rawURL)
}

func (c *Client) dial(ctx context.Context, u string) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, u, nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return conn, nil
}

// Close releases idle transport connections.
func (c *Client) Close() {
	c.resty.GetClient().CloseIdleConnections()
}
