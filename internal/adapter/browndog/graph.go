package browndog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Outputs lists every format the DAP can produce.
func (c *Client) Outputs(ctx context.Context, token string) ([]string, error) {
	return c.listing(ctx, "outputs", token, c.url("/dap/outputs"), 0)
}

// Inputs lists every format the DAP accepts. The service builds this list
// on demand, so the call uses the slow timeout.
func (c *Client) Inputs(ctx context.Context, token string) ([]string, error) {
	return c.listing(ctx, "inputs", token, c.url("/dap/inputs"), c.slowTimeout)
}

// InputsFor lists the formats that can be converted into format.
func (c *Client) InputsFor(ctx context.Context, token, format string) ([]string, error) {
	return c.listing(ctx, "inputs_for", token, c.url("/dap/inputs/", url.PathEscape(format)), 0)
}

// Converters lists the registered conversion paths.
func (c *Client) Converters(ctx context.Context, token string) ([]string, error) {
	return c.listing(ctx, "converters", token, c.url("/dap/convert"), 0)
}

// ConvertersFor lists the formats format can be converted into.
func (c *Client) ConvertersFor(ctx context.Context, token, format string) ([]string, error) {
	return c.listing(ctx, "converters_for", token, c.url("/dap/convert/", url.PathEscape(format)), 0)
}

func (c *Client) listing(ctx context.Context, operation, token, target string, timeout time.Duration) ([]string, error) {
	resp, err := c.Do(ctx, Request{
		Operation: operation,
		Method:    http.MethodGet,
		URL:       target,
		Header:    textHeader(),
		Token:     token,
		Timeout:   timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("op=browndog.%s: %w", operation, err)
	}
	return Lines(string(resp.Body)), nil
}

// Lines splits a text/plain listing into its non-blank, trimmed lines.
func Lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
