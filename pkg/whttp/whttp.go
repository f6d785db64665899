// Package whttp is the outbound HTTP helper shared by the analytics
// tracker and the invoice handshake.
package whttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

const UserAgent = "krevetka/2 (+https://t.me/krevetka_dest_bot)"

type Header struct {
	Name  string
	Value string
}

type Request struct {
	URL     string
	Method  string
	Headers []Header
	Body    []byte
}

type Response struct {
	StatusCode int
	Body       []byte
}

// NewClient returns a quiet retryable client. retryMax 0 disables
// retries entirely.
func NewClient(retryMax int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.Logger = log.New(io.Discard, "", 0)
	c.RetryMax = retryMax
	// hand the last response back instead of a generic "giving up" error
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

func Send(ctx context.Context, wReq *Request, client *retryablehttp.Client) (*Response, error) {
	if client == nil {
		client = NewClient(0)
	}
	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}
	var body interface{}
	if wReq.Body != nil {
		body = wReq.Body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, wReq.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	for _, h := range wReq.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: b}, nil
}

// PostJSON marshals payload and POSTs it. Non-2xx statuses are errors.
func PostJSON(ctx context.Context, client *retryablehttp.Client, url string, payload interface{}) (*Response, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	res, err := Send(ctx, &Request{
		URL:     url,
		Method:  http.MethodPost,
		Headers: []Header{{Name: "Content-Type", Value: "application/json"}},
		Body:    b,
	}, client)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return res, fmt.Errorf("POST %s: unexpected status %d", url, res.StatusCode)
	}
	return res, nil
}
