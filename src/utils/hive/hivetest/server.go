// Package hivetest runs an in-process Hive JSON-RPC node for tests.
package hivetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/hive-micro/watcher/src/utils/hive"
)

type Node struct {
	*httptest.Server

	mtx    sync.Mutex
	head   int64
	blocks map[int64]*hive.Block

	// Every request sleeps this long
	delay time.Duration

	// Every request fails with this status when non zero
	failStatus int

	calls map[string]int
}

type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Id     int64           `json:"id"`
}

func NewNode() (self *Node) {
	self = &Node{
		blocks: make(map[int64]*hive.Block),
		calls:  make(map[string]int),
	}
	self.Server = httptest.NewServer(http.HandlerFunc(self.handle))
	return
}

// Adds blocks, moves the head to the highest one
func (self *Node) AddBlocks(blocks ...*hive.Block) *Node {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	for _, b := range blocks {
		self.blocks[b.Height] = b
		if b.Height > self.head {
			self.head = b.Height
		}
	}
	return self
}

// Adds empty blocks from..to
func (self *Node) AddEmptyBlocks(from, to int64) *Node {
	for h := from; h <= to; h++ {
		self.AddBlocks(NewBlock(h))
	}
	return self
}

func (self *Node) SetHead(head int64) *Node {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.head = head
	return self
}

func (self *Node) SetDelay(d time.Duration) *Node {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.delay = d
	return self
}

func (self *Node) SetFailStatus(status int) *Node {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.failStatus = status
	return self
}

// Number of requests for the given method
func (self *Node) Calls(method string) int {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	return self.calls[method]
}

func (self *Node) TotalCalls() (total int) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	for _, n := range self.calls {
		total += n
	}
	return
}

func (self *Node) handle(w http.ResponseWriter, r *http.Request) {
	var req request
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	self.mtx.Lock()
	self.calls[req.Method]++
	delay, failStatus := self.delay, self.failStatus
	self.mtx.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if failStatus != 0 {
		http.Error(w, http.StatusText(failStatus), failStatus)
		return
	}

	result, rpcErr := self.dispatch(&req)

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"jsonrpc": "2.0", "id": req.Id}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (self *Node) dispatch(req *request) (any, *hive.RpcError) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	switch req.Method {
	case "condenser_api.get_dynamic_global_properties":
		return hive.DynamicGlobalProperties{
			HeadBlockNumber:          self.head,
			LastIrreversibleBlockNum: max(self.head-20, 1),
			Time:                     hive.Timestamp{Time: time.Now().UTC()},
		}, nil

	case "block_api.get_block":
		var params struct {
			BlockNum int64 `json:"block_num"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &hive.RpcError{Code: -32602, Message: err.Error()}
		}
		b, ok := self.blocks[params.BlockNum]
		if !ok || params.BlockNum > self.head {
			return map[string]any{}, nil
		}
		return map[string]any{"block": b}, nil

	case "block_api.get_block_range":
		var params struct {
			StartingBlockNum int64 `json:"starting_block_num"`
			Count            int64 `json:"count"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &hive.RpcError{Code: -32602, Message: err.Error()}
		}
		blocks := make([]*hive.Block, 0, params.Count)
		for h := params.StartingBlockNum; h < params.StartingBlockNum+params.Count && h <= self.head; h++ {
			b, ok := self.blocks[h]
			if !ok {
				break
			}
			blocks = append(blocks, b)
		}
		return map[string]any{"blocks": blocks}, nil
	}

	return nil, &hive.RpcError{Code: -32601, Message: "method not found: " + req.Method}
}

func BlockId(height int64) string {
	return fmt.Sprintf("%08x", height) + strings.Repeat("0", 32)
}

// Block at the given height, timestamped 3s per block after 2025-01-01
func NewBlock(height int64, txs ...hive.Transaction) *hive.Block {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return NewBlockAt(height, base.Add(time.Duration(height)*3*time.Second), txs...)
}

func NewBlockAt(height int64, ts time.Time, txs ...hive.Transaction) *hive.Block {
	b := &hive.Block{
		Height:       height,
		BlockId:      BlockId(height),
		Previous:     BlockId(height - 1),
		Timestamp:    hive.Timestamp{Time: ts.UTC().Truncate(time.Second)},
		Witness:      "witness",
		Transactions: txs,
	}
	for _, tx := range txs {
		b.TransactionIds = append(b.TransactionIds, tx.TransactionId)
	}
	return b
}

func Tx(trxId string, ops ...hive.Operation) hive.Transaction {
	return hive.Transaction{TransactionId: trxId, Operations: ops}
}

// custom_json operation signed with the posting authority of author
func CustomJson(appId, author string, payload any) hive.Operation {
	var auths []string
	if author != "" {
		auths = []string{author}
	}
	return CustomJsonWithAuths(appId, auths, payload)
}

func CustomJsonWithAuths(appId string, postingAuths []string, payload any) hive.Operation {
	var raw []byte
	switch p := payload.(type) {
	case string:
		raw = []byte(p)
	case []byte:
		raw = p
	default:
		var err error
		raw, err = json.Marshal(p)
		if err != nil {
			panic(err)
		}
	}

	if postingAuths == nil {
		postingAuths = []string{}
	}

	value, err := json.Marshal(hive.CustomJson{
		RequiredAuths:        []string{},
		RequiredPostingAuths: postingAuths,
		Id:                   appId,
		Json:                 hive.Payload(raw),
	})
	if err != nil {
		panic(err)
	}
	return hive.Operation{Type: hive.OperationCustomJsonLegacy, Value: value}
}

// Any operation the watcher isn't interested in
func Vote(voter string) hive.Operation {
	value, _ := json.Marshal(map[string]any{"voter": voter, "author": "someone", "permlink": "post", "weight": 10000})
	return hive.Operation{Type: "vote_operation", Value: value}
}
