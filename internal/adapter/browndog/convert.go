package browndog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
	"github.com/fairyhunter13/browndog-tests/pkg/multipartx"
)

// ConvertURL asks the DAP to convert the file at sourceURL into format.
// The reply is the URL the result will be published at. While the service
// is still working it answers 404, reported as domain.ErrNotReady.
func (c *Client) ConvertURL(ctx context.Context, token, format, sourceURL string) (string, error) {
	resp, err := c.Do(ctx, Request{
		Operation: "convert_url",
		Method:    http.MethodGet,
		URL:       c.url("/dap/convert/", url.PathEscape(format), "/", url.QueryEscape(sourceURL)),
		Header:    textHeader(),
		Token:     token,
	})
	if err != nil {
		return "", fmt.Errorf("op=browndog.ConvertURL: %w", err)
	}
	return resultURL("browndog.ConvertURL", resp)
}

// ConvertFile uploads a local file to the DAP for conversion into format.
// The body is streamed from disk as multipart/form-data.
func (c *Client) ConvertFile(ctx context.Context, token, format, path string) (string, error) {
	enc := multipartx.New(nil, []multipartx.FileField{{Name: "file", Path: path}})
	if c.blockSize > 0 {
		enc.BlockSize = c.blockSize
	}
	size, err := enc.Len()
	if err != nil {
		return "", fmt.Errorf("op=browndog.ConvertFile: %w", err)
	}
	hdr := textHeader()
	hdr.Set("Content-Type", enc.ContentType())

	resp, err := c.Do(ctx, Request{
		Operation:     "convert_file",
		Method:        http.MethodPost,
		URL:           c.url("/dap/convert/", url.PathEscape(format), "/"),
		Header:        hdr,
		Body:          enc.Reader(),
		ContentLength: size,
		Token:         token,
	})
	if err != nil {
		return "", fmt.Errorf("op=browndog.ConvertFile: %w", err)
	}
	return resultURL("browndog.ConvertFile", resp)
}

func resultURL(op string, resp *Response) (string, error) {
	u := resp.Text()
	if u == "" {
		return "", fmt.Errorf("op=%s: %w: empty result url", op, domain.ErrService)
	}
	if _, err := url.ParseRequestURI(u); err != nil {
		return "", fmt.Errorf("op=%s: %w: bad result url %q", op, domain.ErrService, u)
	}
	return u, nil
}
