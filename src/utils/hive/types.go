package hive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const TimestampFormat = "2006-01-02T15:04:05"

const (
	OperationCustomJson       = "custom_json"
	OperationCustomJsonLegacy = "custom_json_operation"
)

// Chain timestamps have no zone and are always UTC
type Timestamp struct {
	time.Time
}

func (self *Timestamp) UnmarshalJSON(data []byte) (err error) {
	var s string
	err = json.Unmarshal(data, &s)
	if err != nil {
		return
	}
	s = strings.TrimSuffix(s, "Z")
	if s == "" {
		self.Time = time.Time{}
		return nil
	}
	self.Time, err = time.ParseInLocation(TimestampFormat, s, time.UTC)
	return
}

func (self Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(self.UTC().Format(TimestampFormat))
}

type DynamicGlobalProperties struct {
	HeadBlockNumber          int64     `json:"head_block_number"`
	LastIrreversibleBlockNum int64     `json:"last_irreversible_block_num"`
	Time                     Timestamp `json:"time"`
}

type Block struct {
	// Not part of the payload, derived from BlockId
	Height int64 `json:"-"`

	BlockId        string        `json:"block_id"`
	Previous       string        `json:"previous"`
	Timestamp      Timestamp     `json:"timestamp"`
	Witness        string        `json:"witness"`
	Transactions   []Transaction `json:"transactions"`
	TransactionIds []string      `json:"transaction_ids,omitempty"`
}

// Block number is encoded in the first 4 bytes of the block id
func HeightFromBlockId(blockId string) (int64, error) {
	if len(blockId) < 8 {
		return 0, fmt.Errorf("%w: block id too short: %q", ErrMalformedResponse, blockId)
	}
	height, err := strconv.ParseInt(blockId[:8], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid block id: %q", ErrMalformedResponse, blockId)
	}
	return height, nil
}

// Fills in data that isn't always present in the node's response
func (self *Block) normalize(expectedHeight int64) (err error) {
	if self.BlockId != "" {
		self.Height, err = HeightFromBlockId(self.BlockId)
		if err != nil {
			return
		}
		if self.Height != expectedHeight {
			return fmt.Errorf("%w: expected block %d, got %d", ErrMalformedResponse, expectedHeight, self.Height)
		}
	} else {
		self.Height = expectedHeight
	}

	// block_api returns ids separately from transactions
	for i := range self.Transactions {
		if self.Transactions[i].TransactionId == "" && i < len(self.TransactionIds) {
			self.Transactions[i].TransactionId = self.TransactionIds[i]
		}
	}
	return nil
}

type Transaction struct {
	TransactionId string      `json:"transaction_id,omitempty"`
	Operations    []Operation `json:"operations"`
}

// Operation in either of the encodings used by the API:
// ["custom_json", {...}] or {"type": "custom_json_operation", "value": {...}}
type Operation struct {
	Type  string
	Value json.RawMessage
}

func (self *Operation) UnmarshalJSON(data []byte) (err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty operation", ErrMalformedResponse)
	}

	switch data[0] {
	case '[':
		var pair []json.RawMessage
		err = json.Unmarshal(data, &pair)
		if err != nil {
			return
		}
		if len(pair) != 2 {
			return fmt.Errorf("%w: operation pair of length %d", ErrMalformedResponse, len(pair))
		}
		err = json.Unmarshal(pair[0], &self.Type)
		if err != nil {
			return
		}
		self.Value = pair[1]
	case '{':
		var obj struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		}
		err = json.Unmarshal(data, &obj)
		if err != nil {
			return
		}
		self.Type = obj.Type
		self.Value = obj.Value
	default:
		return fmt.Errorf("%w: unexpected operation encoding", ErrMalformedResponse)
	}
	return nil
}

func (self Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}{
		Type:  self.Type,
		Value: self.Value,
	})
}

func (self *Operation) IsCustomJson() bool {
	return self.Type == OperationCustomJson || self.Type == OperationCustomJsonLegacy
}

func (self *Operation) CustomJson() (out *CustomJson, err error) {
	if !self.IsCustomJson() {
		return nil, fmt.Errorf("not a custom_json operation: %s", self.Type)
	}
	out = new(CustomJson)
	err = json.Unmarshal(self.Value, out)
	if err != nil {
		return nil, err
	}
	return
}

// Application id of a custom_json operation. Doesn't look at the rest of the operation.
func (self *Operation) CustomJsonId() (string, error) {
	if !self.IsCustomJson() {
		return "", fmt.Errorf("not a custom_json operation: %s", self.Type)
	}
	var v struct {
		Id string `json:"id"`
	}
	err := json.Unmarshal(self.Value, &v)
	if err != nil {
		return "", err
	}
	return v.Id, nil
}

type CustomJson struct {
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`
	Id                   string   `json:"id"`
	Json                 Payload  `json:"json"`
}

// Application payload. Nodes send it as a JSON encoded string, some tools as a plain object.
// Always holds the raw JSON document.
type Payload []byte

func (self *Payload) UnmarshalJSON(data []byte) (err error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		err = json.Unmarshal(data, &s)
		if err != nil {
			return
		}
		*self = Payload(s)
		return nil
	}
	*self = append((*self)[:0], data...)
	return nil
}

func (self Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(self))
}
