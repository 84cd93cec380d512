package hive

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// Every configured node failed to answer the request
	ErrNodeUnavailable = errors.New("no hive node available")

	// Node answered with something that can't be used
	ErrMalformedResponse = errors.New("malformed response")
)

// Error object of a JSON-RPC response
type RpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (self *RpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", self.Code, self.Message)
}
