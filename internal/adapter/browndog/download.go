package browndog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fairyhunter13/browndog-tests/internal/adapter/observability"
	"github.com/fairyhunter13/browndog-tests/internal/domain"
	"github.com/fairyhunter13/browndog-tests/internal/poll"
)

// Download waits until rawURL exists and streams it into dest.
//
// A 404 means the artifact has not been published yet and is retried at the
// policy interval until the policy deadline; dest is only created once a 2xx
// reply arrives. Any other status fails the download without writing dest.
// A zero-byte result is reported as success with Size 0; use Verify to turn
// it into domain.ErrEmptyArtifact.
func (c *Client) Download(ctx context.Context, rawURL, dest, token string, policy poll.Policy) domain.DownloadOutcome {
	out := domain.DownloadOutcome{Path: dest}

	res, err := poll.Until(ctx, policy, func(ctx context.Context) (io.ReadCloser, bool, error) {
		resp, err := c.Do(ctx, Request{
			Operation: "download",
			Method:    http.MethodGet,
			URL:       rawURL,
			Token:     token,
			Stream:    true,
		})
		if errors.Is(err, domain.ErrNotReady) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return resp.Stream, true, nil
	})
	out.Attempts = res.Attempts
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTimedOut):
			out.Status = domain.DownloadNotFoundAfterDeadline
			out.Err = fmt.Errorf("op=browndog.Download %s: %w: %w", rawURL, domain.ErrNotFoundAfterDeadline, err)
		case errors.Is(err, domain.ErrTransport), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			out.Status = domain.DownloadTransportError
			out.Err = fmt.Errorf("op=browndog.Download: %w", err)
		default:
			out.Status = domain.DownloadFailed
			out.Err = fmt.Errorf("op=browndog.Download: %w", err)
		}
		return out
	}

	body := res.Payload
	defer func() { _ = body.Close() }()

	n, err := c.writeChunks(dest, body)
	out.Size = n
	observability.AddDownloadedBytes(n)
	if err != nil {
		out.Err = err
		out.Status = domain.DownloadFailed
		if errors.Is(err, domain.ErrTransport) {
			out.Status = domain.DownloadTransportError
		}
		return out
	}
	out.Status = domain.DownloadSuccess
	return out
}

// writeChunks copies r into dest one chunk at a time; each chunk is handed
// to the OS before the next read so a partial download stays inspectable.
func (c *Client) writeChunks(dest string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("op=browndog.Download: create %s: %w", dest, err)
	}
	buf := make([]byte, c.chunkSize)
	var total int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				_ = f.Close()
				return total, fmt.Errorf("op=browndog.Download: write %s: %w", dest, werr)
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = f.Close()
			return total, &domain.TransportError{Op: "browndog.Download", Err: rerr}
		}
	}
	if err := f.Close(); err != nil {
		return total, fmt.Errorf("op=browndog.Download: close %s: %w", dest, err)
	}
	return total, nil
}
