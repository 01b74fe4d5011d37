package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// Aria2Client talks to an aria2 daemon over JSON-RPC
type Aria2Client struct {
	rpcURL string
	secret string
	client *http.Client
	seq    atomic.Uint64
}

// NewAria2Client creates a client for the aria2 endpoint at rpcURL
func NewAria2Client(rpcURL, secret string, client *http.Client) *Aria2Client {
	return &Aria2Client{rpcURL: rpcURL, secret: secret, client: client}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	ID      string        `json:"id"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is an error reported by aria2
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("aria2 rpc error %d: %s", e.Code, e.Message)
}

// Call invokes method and decodes its result into out (which may be nil)
func (c *Aria2Client) Call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	all := make([]interface{}, 0, len(params)+1)
	if c.secret != "" {
		all = append(all, "token:"+c.secret)
	}
	all = append(all, params...)

	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      fmt.Sprintf("fetchvideo-%d", c.seq.Add(1)),
		Params:  all,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("aria2 %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("aria2 %s: invalid response (status %d): %w", method, resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("aria2 %s: unexpected result: %w", method, err)
	}
	return nil
}

// Aria2Options are per-download options passed to aria2.addUri
type Aria2Options struct {
	Dir       string
	Out       string
	Headers   map[string]string
	Overwrite bool
}

// AddURI queues a download and returns its gid
func (c *Aria2Client) AddURI(ctx context.Context, uri string, opts Aria2Options) (string, error) {
	options := map[string]interface{}{
		"dir": opts.Dir,
		"out": opts.Out,
	}
	if opts.Overwrite {
		options["allow-overwrite"] = "true"
		options["auto-file-renaming"] = "false"
	} else {
		options["allow-overwrite"] = "false"
		options["auto-file-renaming"] = "true"
	}

	headerList := make([]string, 0, len(opts.Headers))
	for k, v := range opts.Headers {
		headerList = append(headerList, fmt.Sprintf("%s: %s", k, v))
	}
	if len(headerList) > 0 {
		options["header"] = headerList
	}

	var gid string
	if err := c.Call(ctx, "aria2.addUri", &gid, []string{uri}, options); err != nil {
		return "", err
	}
	if gid == "" {
		return "", fmt.Errorf("aria2.addUri returned no gid")
	}
	return gid, nil
}

// Aria2File is one file of a download
type Aria2File struct {
	Path string `json:"path"`
}

// Aria2Status is the subset of aria2.tellStatus used here
type Aria2Status struct {
	GID          string      `json:"gid"`
	Status       string      `json:"status"` // active, waiting, paused, error, complete, removed
	ErrorCode    string      `json:"errorCode,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	Files        []Aria2File `json:"files,omitempty"`
}

// TellStatus reports the state of a download
func (c *Aria2Client) TellStatus(ctx context.Context, gid string) (*Aria2Status, error) {
	var status Aria2Status
	keys := []string{"gid", "status", "errorCode", "errorMessage", "files"}
	if err := c.Call(ctx, "aria2.tellStatus", &status, gid, keys); err != nil {
		return nil, err
	}
	return &status, nil
}

// ForceRemove stops a download without waiting for aria2 housekeeping
func (c *Aria2Client) ForceRemove(ctx context.Context, gid string) error {
	return c.Call(ctx, "aria2.forceRemove", nil, gid)
}

// RemoveDownloadResult drops a finished download from aria2's memory
func (c *Aria2Client) RemoveDownloadResult(ctx context.Context, gid string) error {
	return c.Call(ctx, "aria2.removeDownloadResult", nil, gid)
}

// GetVersion is used as a connectivity check
func (c *Aria2Client) GetVersion(ctx context.Context) (string, error) {
	var v struct {
		Version string `json:"version"`
	}
	if err := c.Call(ctx, "aria2.getVersion", &v); err != nil {
		return "", err
	}
	return v.Version, nil
}
