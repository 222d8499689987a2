package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dantte-lp/gorstp/internal/server"
	appversion "github.com/dantte-lp/gorstp/internal/version"
)

// errAPI wraps every non-2xx answer of the daemon.
var errAPI = errors.New("api error")

// apiClient is a thin JSON client for the gorstp management API.
type apiClient struct {
	base string
	hc   *http.Client
}

func newAPIClient(base string, hc *http.Client) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), hc: hc}
}

func (c *apiClient) bridges(ctx context.Context) ([]server.Bridge, error) {
	var out []server.Bridge
	err := c.do(ctx, http.MethodGet, "/v1/bridges", nil, &out)
	return out, err
}

func (c *apiClient) bridge(ctx context.Context, name string) (server.Bridge, error) {
	var out server.Bridge
	err := c.do(ctx, http.MethodGet, bridgePath(name), nil, &out)
	return out, err
}

func (c *apiClient) port(ctx context.Context, bridge string, number uint16) (server.Port, error) {
	var out server.Port
	err := c.do(ctx, http.MethodGet, portPath(bridge, number), nil, &out)
	return out, err
}

func (c *apiClient) patchBridge(ctx context.Context, name string, p server.BridgePatch) (server.Bridge, error) {
	var out server.Bridge
	err := c.do(ctx, http.MethodPatch, bridgePath(name), p, &out)
	return out, err
}

func (c *apiClient) patchPort(ctx context.Context, bridge string, number uint16, p server.PortPatch) (server.Port, error) {
	var out server.Port
	err := c.do(ctx, http.MethodPatch, portPath(bridge, number), p, &out)
	return out, err
}

func (c *apiClient) mcheck(ctx context.Context, bridge string, number uint16) error {
	return c.do(ctx, http.MethodPost, portPath(bridge, number)+"/mcheck", nil, nil)
}

func (c *apiClient) version(ctx context.Context) (appversion.Info, error) {
	var out appversion.Info
	err := c.do(ctx, http.MethodGet, "/v1/version", nil, &out)
	return out, err
}

// do sends one request. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded response.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// streamEvents reads the server-sent event stream and calls fn for every
// complete event until the stream ends or ctx is cancelled.
func (c *apiClient) streamEvents(ctx context.Context, includeCurrent bool, fn func(name string, data []byte) error) error {
	path := "/v1/events"
	if includeCurrent {
		path += "?include_current=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	return readSSE(resp.Body, fn)
}

// readSSE splits r into events. Only the event and data fields are
// interpreted; multiple data lines are joined with newlines.
func readSSE(r io.Reader, fn func(name string, data []byte) error) error {
	sc := bufio.NewScanner(r)

	var (
		name string
		data []byte
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if err := fn(name, data); err != nil {
					return err
				}
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
			// Comment.
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")...)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// checkResponse turns a non-2xx response into an error carrying the
// server's message.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var er server.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&er); err != nil || er.Error == "" {
		return fmt.Errorf("%w: %s", errAPI, resp.Status)
	}
	return fmt.Errorf("%w: %s: %s", errAPI, resp.Status, er.Error)
}

func bridgePath(name string) string {
	return "/v1/bridges/" + url.PathEscape(name)
}

func portPath(bridge string, number uint16) string {
	return bridgePath(bridge) + "/ports/" + strconv.FormatUint(uint64(number), 10)
}
