package tool

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/flowgraph/flowgraph/grapherr"
)

// HTTPTool makes outbound HTTP requests on behalf of a graph. It supports
// GET and POST and reports status code, headers, and body back to the
// caller.
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool creates an HTTPTool with a default client (timeouts are
// enforced through the request context, following the node-level timeout
// policy rather than a client-level deadline).
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{client: &http.Client{}}
}

func (h *HTTPTool) Name() string { return "http_request" }

func (h *HTTPTool) Execute(ctx context.Context, params map[string]any, _ Context) (Result, error) {
	urlStr, ok := params["url"].(string)
	if !ok || urlStr == "" {
		err := grapherr.NewToolError("", grapherr.ToolMissingParam, "url parameter is required", false, nil)
		return Result{Success: false, Error: err, Kind: KindValue}, err
	}

	method := "GET"
	if m, ok := params["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != "GET" && method != "POST" {
		err := grapherr.NewToolError("", grapherr.ToolInvalidParam, "unsupported HTTP method: "+method, false, nil)
		return Result{Success: false, Error: err, Kind: KindValue}, err
	}

	var body io.Reader
	if bodyStr, ok := params["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		e := grapherr.NewToolError("", grapherr.ToolRuntime, "failed to build request", false, err)
		return Result{Success: false, Error: e}, e
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		e := grapherr.NewToolError("", grapherr.ToolRuntime, "http request failed", true, err)
		return Result{Success: false, Error: e}, e
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e := grapherr.NewToolError("", grapherr.ToolRuntime, "failed to read response body", true, err)
		return Result{Success: false, Error: e}, e
	}

	headers := make(map[string]any, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return Result{
		Success: resp.StatusCode < 400,
		Result: map[string]any{
			"status_code": resp.StatusCode,
			"headers":     headers,
			"body":        string(respBody),
		},
		Kind: KindValue,
	}, nil
}
