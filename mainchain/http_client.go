package mainchain

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// HTTPClient is the production Client, a thin JSON-over-HTTP wrapper:
// a base URL, an injected *http.Client, and one method per RPC.
type HTTPClient struct {
	URL  string
	HTTP *http.Client
}

// NewHTTPClient returns a client against a BFT main-chain node's RPC
// endpoint at url.
func NewHTTPClient(url string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = new(http.Client)
	}
	return &HTTPClient{URL: strings.TrimRight(url, "/"), HTTP: hc}
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+path, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "main chain rpc")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("main chain rpc: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status queries the main chain's current height.
func (c *HTTPClient) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.get(ctx, "/status", &st)
	return st, errors.Wrap(err, "status")
}

// Query fetches every abstract committed at height.
func (c *HTTPClient) Query(ctx context.Context, height uint64) ([]Abstract, error) {
	var abs []Abstract
	err := c.get(ctx, "/query?height="+strconv.FormatUint(height, 10), &abs)
	return abs, errors.Wrapf(err, "query height %d", height)
}

// Commit posts a for ordering by the main chain and returns the
// resulting block hash once accepted.
func (c *HTTPClient) Commit(ctx context.Context, a Abstract) ([32]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "marshaling abstract")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/commit", bytes.NewReader(body))
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "main chain rpc")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return [32]byte{}, errors.Errorf("commit: status %d: %s", resp.StatusCode, readBody(resp))
	}
	return a.Hash(), nil
}

func readBody(resp *http.Response) string {
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return buf.String()
}
