package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"time"

	"github.com/flusio/minz-worker/config"
)

var defaultTimeout = 6500 * time.Millisecond
var defaultHTTPClient = &http.Client{Timeout: defaultTimeout}

// Client is a generic Rest client for making HTTP requests.
type Client struct {
	ID     string
	Token  string
	Client *http.Client
	Base   string
}

// NewClient returns a new Client with the given user and password. Base is the
// scheme+domain to hit for all requests. By default, the request timeout is
// set to 6.5 seconds.
func NewClient(user, pass, base string) *Client {
	return &Client{
		ID:     user,
		Token:  pass,
		Client: defaultHTTPClient,
		Base:   base,
	}
}

// NewRequest creates a new Request and sets basic auth based on
// the client's authentication information.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.ID, c.Token)
	req.Header.Add("User-Agent", fmt.Sprintf("minz-worker/v%s", config.Version))
	if method == "POST" || method == "PUT" {
		req.Header.Add("Content-Type", "application/json; charset=utf-8")
	}
	return req, nil
}

func debugTraffic(kind string) bool {
	return os.Getenv("DEBUG_HTTP_TRAFFIC") == "true" || os.Getenv("DEBUG_HTTP_"+kind) == "true"
}

// Do performs the HTTP request. If the HTTP response is in the 2xx range,
// Unmarshal the response body into v, otherwise return an error. Problem
// responses are returned as an *Error.
func (c *Client) Do(r *http.Request, v interface{}) error {
	b := new(bytes.Buffer)
	if debugTraffic("REQUEST") {
		bits, err := httputil.DumpRequestOut(r, true)
		if err != nil {
			return err
		}
		b.Write(bits)
	}
	res, err := c.Client.Do(r)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if debugTraffic("RESPONSES") {
		bits, err := httputil.DumpResponse(res, true)
		if err != nil {
			return err
		}
		b.Write(bits)
	}
	if b.Len() > 0 {
		if _, err := b.WriteTo(os.Stderr); err != nil {
			return err
		}
	}
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		rerr := new(Error)
		if err := json.Unmarshal(resBody, rerr); err != nil || rerr.Title == "" {
			return fmt.Errorf("invalid response body: %s", string(resBody))
		}
		rerr.StatusCode = res.StatusCode
		return rerr
	}
	if v == nil || len(resBody) == 0 {
		return nil
	}
	return json.Unmarshal(resBody, v)
}
