// Package external holds the read-only clients of the platform services this
// server depends on: identity lookup and course info. Both tolerate outages;
// callers get degraded data instead of errors.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/mbeoliero/coursechat/pkg/errcode"
)

// upstream issues bounded GET requests against one platform service
type upstream struct {
	baseURL    string
	timeout    time.Duration
	httpClient *client.Client
}

func newUpstream(baseURL string, timeout time.Duration) (*upstream, error) {
	httpClient, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	return &upstream{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
	}, nil
}

// getJSON fetches path and decodes the body into out.
// Payloads may come bare or wrapped in a {"data": ...} envelope.
func (u *upstream) getJSON(ctx context.Context, path string, out interface{}) error {
	req := &protocol.Request{}
	resp := &protocol.Response{}
	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(u.baseURL + path)
	req.Header.Set("Accept", "application/json")

	if err := u.httpClient.DoTimeout(ctx, req, resp, u.timeout); err != nil {
		return errcode.ErrUpstreamUnavailable.Wrap(err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return errcode.ErrUpstreamUnavailable.Wrap(fmt.Errorf("%s returned status %d", path, status))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	body := resp.Body()
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && envelope.Data[0] == '{' {
		body = envelope.Data
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errcode.ErrUpstreamUnavailable.Wrap(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}
