package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient talks to the fetchvideo REST API
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// do sends body as JSON and decodes a 2xx response into out.
// Error responses are turned into errors carrying the server message.
func (c *apiClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// taskView is the subset of a task the CLI prints
type taskView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	VideoData struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Quality string `json:"quality"`
	} `json:"video_data"`
	Status             string     `json:"status"`
	TotalSegments      int        `json:"total_segments"`
	CurrentIndex       int        `json:"current_index"`
	Percent            int        `json:"percent"`
	Failed             int        `json:"failed"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            *time.Time `json:"end_time"`
	Error              string     `json:"error"`
	DownloadedSegments []struct {
		Index    int    `json:"index"`
		Filename string `json:"filename"`
		Error    string `json:"error"`
	} `json:"downloaded_segments"`
}
