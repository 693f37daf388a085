// Package httpclient sends raw JSON requests to the services, for scenarios
// that need to bypass the todo client (duplicate keys, malformed commands).
package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Response is a fully read reply.
type Response struct {
	Status int
	Body   []byte
}

// Decode unmarshals the body into out.
func (r Response) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode %q: %w", r.Body, err)
	}
	return nil
}

func (c *Client) Get(path string) (Response, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return Response{}, err
	}
	return c.do(req)
}

// PostJSON encodes body as JSON and posts it.
func (c *Client) PostJSON(path string, body any) (Response, error) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return Response{}, err
	}
	return c.PostRaw(path, buf.Bytes())
}

// PostRaw posts body unchanged.
func (c *Client) PostRaw(path string, body []byte) (Response, error) {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (Response, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: resp.StatusCode, Body: body}, nil
}
