package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dl-alexandre/memora/internal/types"
)

// Transfer streams the file at path as the raw body of a PUT to target.
// The file is reopened on every attempt.
func (c *Client) Transfer(ctx context.Context, reqCtx *types.RequestContext, target, path string) error {
	_, err := ExecuteWithRetry(ctx, c, reqCtx, func() (struct{}, error) {
		return struct{}{}, c.putContent(ctx, target, path)
	})
	return err
}

func (c *Client) putContent(ctx context.Context, target, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &localError{err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &localError{err: err}
	}
	if !info.Mode().IsRegular() {
		return &localError{err: fmt.Errorf("%s is not a regular file", path)}
	}

	var body io.Reader = f
	if info.Size() == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return &localError{err: err}
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.content.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
