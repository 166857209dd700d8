// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package webclient talks to the off-chain sources: the marketplace REST
// API, the hero-genes GraphQL API and the battles GraphQL API. All three
// share one POST helper with rate-limit backoff.
package webclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/metrics"
)

var logger = log.WithContext("pkg", "webclient")

var metricRateLimits = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("webclient_rate_limit_hits_total", []string{"api"})
})

const maxRetries = 3

// vars so tests can shrink the delays
var (
	backoffBase   = time.Second
	backoffCap    = 10 * time.Second
	backoffJitter = 250 * time.Millisecond
)

// Client is the shared POST-with-backoff transport.
type Client struct {
	api string
	url string
	c   *http.Client

	rateLimitHits atomic.Uint64
}

func newClient(api, url string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{api: api, url: url, c: hc}
}

// RateLimitHits reports how often the upstream returned 429 since start.
func (c *Client) RateLimitHits() uint64 {
	return c.rateLimitHits.Load()
}

// postJSON POSTs payload and decodes the response into out, retrying
// 429 and 5xx with capped exponential backoff.
func (c *Client) postJSON(ctx context.Context, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		data, status, err := c.doOnce(ctx, body)
		if err == nil && status == http.StatusOK {
			return json.Unmarshal(data, out)
		}
		if err == nil {
			err = errors.Errorf("%s returned status %d", c.api, status)
			if status == http.StatusTooManyRequests {
				c.rateLimitHits.Add(1)
				metricRateLimits().AddWithLabel(1, map[string]string{"api": c.api})
			}
			if status != http.StatusTooManyRequests && status < 500 {
				return err
			}
		}
		if attempt >= maxRetries {
			return errors.WithMessagef(err, "%s after %d retries", c.api, attempt)
		}
		delay := backoffBase<<attempt + time.Duration(rand.Int63n(int64(backoffJitter)))
		if delay > backoffCap {
			delay = backoffCap
		}
		logger.Debug("backing off", "api", c.api, "attempt", attempt, "delay", delay, "err", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) doOnce(ctx context.Context, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.c.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// graphqlRequest is the standard GraphQL POST envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (e graphqlError) String() string { return e.Message }

// queryGraphQL posts a query and decodes data into out, surfacing
// GraphQL-level errors.
func (c *Client) queryGraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := c.postJSON(ctx, graphqlRequest{Query: query, Variables: variables}, &envelope); err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		return errors.Errorf("%s graphql error: %s", c.api, fmt.Sprint(envelope.Errors))
	}
	if envelope.Data == nil {
		return errors.Errorf("%s returned no data", c.api)
	}
	return json.Unmarshal(envelope.Data, out)
}
