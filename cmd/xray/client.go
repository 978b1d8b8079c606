// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohit-nagaraj/xray-logger/pkg/httpclient"
)

// apiClient is a thin JSON client for the trace server's query API.
type apiClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func newAPIClient(flags *rootFlags) (*apiClient, error) {
	flags.resolve()

	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "xray-cli/" + version

	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}

	return &apiClient{
		http:    client,
		baseURL: strings.TrimSuffix(flags.serverURL, "/"),
		apiKey:  flags.apiKey,
	}, nil
}

// get fetches path with query params and decodes the JSON response into out.
func (c *apiClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found: %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
