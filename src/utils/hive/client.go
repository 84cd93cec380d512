package hive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hive-micro/watcher/src/utils/build_info"
	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/logger"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// JSON-RPC client talking to an ordered list of Hive nodes.
// A failed request is retried once on each of the other nodes before giving up.
type Client struct {
	client *resty.Client
	config *config.Config
	log    *logrus.Entry

	nodes []string

	// Index of the node requests start with. Shared by all requests.
	current atomic.Int64

	// Called every time a node fails and another one is tried
	onFailover func(node string, err error)

	mtx      sync.Mutex
	limiters map[string]*rate.Limiter

	requestId atomic.Int64
}

type rpcRequest struct {
	JsonRpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Id      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RpcError       `json:"error"`
}

func NewClient(config *config.Config) (self *Client) {
	self = new(Client)
	self.config = config
	self.log = logger.NewSublogger("hive-client")
	self.limiters = make(map[string]*rate.Limiter)

	for _, node := range config.Hive.NodeUrls {
		self.nodes = append(self.nodes, strings.TrimSuffix(node, "/"))
	}

	self.client = resty.New().
		SetTimeout(config.Hive.RequestTimeout).
		SetHeader("User-Agent", "hive-micro/watcher/"+build_info.Version).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(0).
		SetLogger(NewLogger()).
		SetTransport(self.createTransport()).
		OnBeforeRequest(self.onRateLimit).
		OnAfterResponse(self.onTooManyRequests).
		OnAfterResponse(self.onStatusToError)

	return
}

func (self *Client) WithOnFailover(f func(node string, err error)) *Client {
	self.onFailover = f
	return self
}

// Node currently used as the first choice
func (self *Client) CurrentNode() string {
	if len(self.nodes) == 0 {
		return ""
	}
	return self.nodes[int(self.current.Load())%len(self.nodes)]
}

func (self *Client) createTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   self.config.Hive.DialerTimeout,
		KeepAlive: self.config.Hive.DialerKeepAlive,
	}

	return &http.Transport{
		ForceAttemptHTTP2:     true,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   self.config.Hive.DialerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   2,
	}
}

func (self *Client) onStatusToError(c *resty.Client, resp *resty.Response) error {
	// Non-success status code turns into an error
	if resp.IsSuccess() {
		return nil
	}
	return fmt.Errorf("unexpected status: %s", resp.Status())
}

func (self *Client) onTooManyRequests(c *resty.Client, resp *resty.Response) error {
	if resp.StatusCode() != http.StatusTooManyRequests {
		return nil
	}

	// Remote host receives too much requests, adjust rate limit
	u, err := url.ParseRequestURI(resp.Request.URL)
	if err != nil {
		return nil
	}

	self.mtx.Lock()
	defer self.mtx.Unlock()
	limiter, ok := self.limiters[u.Host]
	if !ok {
		return nil
	}

	self.log.WithField("node", u.Host).Debug("Decreasing limit")
	limiter.SetLimit(limiter.Limit() * 0.9)
	return nil
}

func (self *Client) onRateLimit(c *resty.Client, req *resty.Request) (err error) {
	u, err := url.ParseRequestURI(req.URL)
	if err != nil {
		return
	}

	self.mtx.Lock()
	limiter, ok := self.limiters[u.Host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(self.config.Hive.MaxRequestsPerSecond), 1)
		self.limiters[u.Host] = limiter
	}
	self.mtx.Unlock()

	// Blocks till the request is possible or ctx gets canceled
	return limiter.Wait(req.Context())
}

// Sends the request to one node after another, starting with the current one.
// decode is called with the result and may reject it, which counts as a failure of the node.
func (self *Client) call(ctx context.Context, method string, params any, decode func(json.RawMessage) error) (err error) {
	n := len(self.nodes)
	if n == 0 {
		return fmt.Errorf("%w: no nodes configured", ErrNodeUnavailable)
	}

	start := int(self.current.Load()) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		node := self.nodes[idx]

		err = self.callNode(ctx, node, method, params, decode)
		if err == nil {
			if i > 0 {
				// Stick to the node that works
				self.current.Store(int64(idx))
			}
			return nil
		}

		if ctx.Err() != nil {
			// Cancelled, not a node failure
			return ctx.Err()
		}

		self.log.WithError(err).
			WithField("node", node).
			WithField("method", method).
			Warn("Request failed, trying next node")

		if self.onFailover != nil {
			self.onFailover(node, err)
		}
	}

	// Next request starts with another node
	self.current.Store(int64((start + 1) % n))

	return fmt.Errorf("%w: %s: %w", ErrNodeUnavailable, method, err)
}

func (self *Client) callNode(ctx context.Context, node, method string, params any, decode func(json.RawMessage) error) (err error) {
	resp, err := self.client.R().
		SetContext(ctx).
		SetBody(rpcRequest{
			JsonRpc: "2.0",
			Method:  method,
			Params:  params,
			Id:      self.requestId.Inc(),
		}).
		Post(node)
	if err != nil {
		return
	}

	var out rpcResponse
	err = json.Unmarshal(resp.Body(), &out)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if out.Error != nil {
		return out.Error
	}

	if len(out.Result) == 0 || string(out.Result) == "null" {
		return fmt.Errorf("%w: empty result", ErrMalformedResponse)
	}

	err = decode(out.Result)
	if err != nil {
		if !errors.Is(err, ErrMalformedResponse) {
			err = fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		return
	}
	return nil
}

func (self *Client) GetDynamicGlobalProperties(ctx context.Context) (out *DynamicGlobalProperties, err error) {
	err = self.call(ctx, "condenser_api.get_dynamic_global_properties", []any{}, func(raw json.RawMessage) error {
		out = new(DynamicGlobalProperties)
		err := json.Unmarshal(raw, out)
		if err != nil {
			return err
		}
		if out.HeadBlockNumber <= 0 {
			return fmt.Errorf("%w: no head block number", ErrMalformedResponse)
		}
		return nil
	})
	return
}

// Height of the newest block the watcher may ingest
func (self *Client) CurrentHead(ctx context.Context) (height int64, err error) {
	props, err := self.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return
	}
	if self.config.Hive.UseIrreversible && props.LastIrreversibleBlockNum > 0 {
		return props.LastIrreversibleBlockNum, nil
	}
	return props.HeadBlockNumber, nil
}

func (self *Client) FetchBlock(ctx context.Context, height int64) (out *Block, err error) {
	params := map[string]int64{"block_num": height}
	err = self.call(ctx, "block_api.get_block", params, func(raw json.RawMessage) error {
		var result struct {
			Block *Block `json:"block"`
		}
		err := json.Unmarshal(raw, &result)
		if err != nil {
			return err
		}
		if result.Block == nil {
			return fmt.Errorf("%w: block %d not found", ErrMalformedResponse, height)
		}
		err = result.Block.normalize(height)
		if err != nil {
			return err
		}
		out = result.Block
		return nil
	})
	return
}

// Blocks from..to inclusive, in ascending order
func (self *Client) FetchBlocks(ctx context.Context, from, to int64) (out []*Block, err error) {
	if to < from {
		return nil, nil
	}

	out = make([]*Block, 0, to-from+1)
	chunk := int64(self.config.Hive.BlockRangeSize)
	for start := from; start <= to; start += chunk {
		count := min(chunk, to-start+1)

		var blocks []*Block
		blocks, err = self.fetchRange(ctx, start, count)
		if err != nil {
			return nil, err
		}
		out = append(out, blocks...)
	}
	return
}

func (self *Client) fetchRange(ctx context.Context, start, count int64) (out []*Block, err error) {
	params := map[string]int64{"starting_block_num": start, "count": count}
	err = self.call(ctx, "block_api.get_block_range", params, func(raw json.RawMessage) error {
		var result struct {
			Blocks []*Block `json:"blocks"`
		}
		err := json.Unmarshal(raw, &result)
		if err != nil {
			return err
		}
		if int64(len(result.Blocks)) != count {
			return fmt.Errorf("%w: requested %d blocks from %d, got %d", ErrMalformedResponse, count, start, len(result.Blocks))
		}
		for i, block := range result.Blocks {
			if block == nil {
				return fmt.Errorf("%w: empty block %d", ErrMalformedResponse, start+int64(i))
			}
			err = block.normalize(start + int64(i))
			if err != nil {
				return err
			}
		}
		out = result.Blocks
		return nil
	})
	return
}
