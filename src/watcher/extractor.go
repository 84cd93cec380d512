package watcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/hive"
	"github.com/hive-micro/watcher/src/utils/logger"
	"github.com/hive-micro/watcher/src/utils/model"

	"github.com/sirupsen/logrus"
)

// Payload discriminants
const (
	PayloadTypePost     = "post"
	PayloadTypeReply    = "reply"
	PayloadTypeModerate = "moderate"
	PayloadTypeFollow   = "follow"
	PayloadTypeUnfollow = "unfollow"
	PayloadTypeHeart    = "heart"
)

type postPayload struct {
	Content  *string  `json:"content"`
	ReplyTo  string   `json:"reply_to"`
	Mentions []string `json:"mentions"`
	Tags     []string `json:"tags"`
}

type moderatePayload struct {
	Action string `json:"action"`
	TrxId  string `json:"trx_id"`
	Reason string `json:"reason"`
}

type followPayload struct {
	Following string `json:"following"`
}

type heartPayload struct {
	TrxId string `json:"trx_id"`
}

// Turns block operations into application actions
type Extractor struct {
	log    *logrus.Entry
	config *config.Watcher
	appIds map[string]struct{}
}

func NewExtractor(config *config.Config) (self *Extractor) {
	self = new(Extractor)
	self.log = logger.NewSublogger("extractor")
	self.config = &config.Watcher

	self.appIds = make(map[string]struct{}, len(config.Watcher.AppIds))
	for _, id := range config.Watcher.AppIds {
		self.appIds[id] = struct{}{}
	}
	return
}

// Decodes all application operations in the block, in transaction and operation order.
// Malformed operations are skipped and counted.
func (self *Extractor) Extract(block *hive.Block) (actions []Action, dropped int) {
	for txIdx := range block.Transactions {
		for opIdx := range block.Transactions[txIdx].Operations {
			action, err := self.Decode(block, txIdx, opIdx)
			if err != nil {
				dropped++
				self.log.WithError(err).
					WithField("height", block.Height).
					WithField("trx_id", block.Transactions[txIdx].TransactionId).
					WithField("op", opIdx).
					Warn("Dropping operation")
				continue
			}
			if action == nil {
				// Not ours
				continue
			}
			actions = append(actions, action)
		}
	}
	return
}

// Decodes one operation. Returns nil action and nil error for operations of other applications.
func (self *Extractor) Decode(block *hive.Block, txIdx, opIdx int) (action Action, err error) {
	tx := &block.Transactions[txIdx]
	op := &tx.Operations[opIdx]

	if !op.IsCustomJson() {
		return nil, nil
	}

	appId, err := op.CustomJsonId()
	if err != nil {
		// Can't be ours
		return nil, nil
	}
	if _, ok := self.appIds[appId]; !ok {
		return nil, nil
	}

	customJson, err := op.CustomJson()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, err.Error())
	}

	if !IsTrxId(tx.TransactionId) {
		return nil, ErrMissingTrxId
	}

	if len(customJson.RequiredPostingAuths) != 1 {
		return nil, ErrAmbiguousAuthor
	}
	author, ok := NormalizeUsername(customJson.RequiredPostingAuths[0])
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAuthor, customJson.RequiredPostingAuths[0])
	}

	payload := bytes.TrimSpace(customJson.Json)
	if len(payload) > self.config.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	var fields map[string]json.RawMessage
	err = json.Unmarshal(payload, &fields)
	if err != nil || fields == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}
	if len(fields) > self.config.MaxPayloadFields {
		return nil, fmt.Errorf("%w: %d", ErrTooManyFields, len(fields))
	}

	var document any
	if json.Unmarshal(payload, &document) == nil && containsNul(document) {
		return nil, fmt.Errorf("%w: NUL character", ErrInvalidField)
	}

	var payloadType string
	rawType, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	}
	err = json.Unmarshal(rawType, &payloadType)
	if err != nil {
		return nil, fmt.Errorf("%w: type", ErrInvalidField)
	}

	meta := ActionMeta{
		TrxId:     tx.TransactionId,
		BlockNum:  block.Height,
		Timestamp: block.Timestamp.UTC(),
		Author:    author,
		AppId:     customJson.Id,
		TxIndex:   txIdx,
		OpIndex:   opIdx,
		RawJson:   payload,
	}

	switch payloadType {
	case PayloadTypePost, PayloadTypeReply:
		return self.decodePost(meta, payloadType, payload)
	case PayloadTypeModerate:
		return self.decodeModeration(meta, payload)
	case PayloadTypeFollow, PayloadTypeUnfollow:
		return self.decodeFollow(meta, payloadType, payload)
	case PayloadTypeHeart:
		return self.decodeHeart(meta, payload)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, payloadType)
}

// Postgres stores neither NUL in text nor \u0000 in jsonb
func containsNul(v any) bool {
	switch v := v.(type) {
	case string:
		return strings.ContainsRune(v, 0)
	case []any:
		for _, item := range v {
			if containsNul(item) {
				return true
			}
		}
	case map[string]any:
		for key, item := range v {
			if strings.ContainsRune(key, 0) || containsNul(item) {
				return true
			}
		}
	}
	return false
}

func strict(payload []byte, out any) error {
	err := json.Unmarshal(payload, out)
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: %s", ErrInvalidField, typeErr.Field)
		}
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err.Error())
	}
	return nil
}

func (self *Extractor) decodePost(meta ActionMeta, payloadType string, payload []byte) (Action, error) {
	var p postPayload
	err := strict(payload, &p)
	if err != nil {
		return nil, err
	}

	if p.Content == nil {
		return nil, fmt.Errorf("%w: content", ErrMissingField)
	}
	content := strings.TrimSpace(*p.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is empty", ErrInvalidField)
	}
	if utf8.RuneCountInString(content) > self.config.MaxContentLength {
		return nil, fmt.Errorf("%w: content longer than %d", ErrLimitExceeded, self.config.MaxContentLength)
	}

	replyTo := strings.ToLower(strings.TrimSpace(p.ReplyTo))
	if replyTo != "" && !IsTrxId(replyTo) {
		return nil, fmt.Errorf("%w: reply_to", ErrInvalidField)
	}
	if payloadType == PayloadTypeReply && replyTo == "" {
		return nil, fmt.Errorf("%w: reply_to", ErrMissingField)
	}
	if replyTo == meta.TrxId {
		return nil, fmt.Errorf("%w: reply to itself", ErrInvalidField)
	}

	var mentions, tags []string
	if len(p.Mentions) > 0 {
		mentions = NormalizeMentions(p.Mentions)
	} else {
		mentions = MentionsFromContent(content)
	}
	if len(p.Tags) > 0 {
		tags = NormalizeTags(p.Tags)
	} else {
		tags = TagsFromContent(content)
	}

	if len(mentions) > self.config.MaxMentions {
		return nil, fmt.Errorf("%w: %d mentions", ErrLimitExceeded, len(mentions))
	}
	if len(tags) > self.config.MaxTags {
		return nil, fmt.Errorf("%w: %d tags", ErrLimitExceeded, len(tags))
	}

	messageType := model.MessageTypePost
	if replyTo != "" {
		messageType = model.MessageTypeReply
	}

	return &PostAction{
		ActionMeta: meta,
		Type:       messageType,
		Content:    content,
		Mentions:   mentions,
		Tags:       tags,
		ReplyTo:    replyTo,
	}, nil
}

func (self *Extractor) decodeModeration(meta ActionMeta, payload []byte) (Action, error) {
	var p moderatePayload
	err := strict(payload, &p)
	if err != nil {
		return nil, err
	}

	action := strings.ToLower(strings.TrimSpace(p.Action))
	if action != model.ModerationActionHide && action != model.ModerationActionUnhide {
		return nil, fmt.Errorf("%w: action %q", ErrInvalidField, p.Action)
	}

	target := strings.ToLower(strings.TrimSpace(p.TrxId))
	if target == "" {
		return nil, fmt.Errorf("%w: trx_id", ErrMissingField)
	}
	if !IsTrxId(target) {
		return nil, fmt.Errorf("%w: trx_id", ErrInvalidField)
	}

	reason := strings.TrimSpace(p.Reason)
	if utf8.RuneCountInString(reason) > self.config.MaxContentLength {
		return nil, fmt.Errorf("%w: reason longer than %d", ErrLimitExceeded, self.config.MaxContentLength)
	}

	return &ModerationAction{
		ActionMeta:  meta,
		Action:      action,
		TargetTrxId: target,
		Reason:      reason,
	}, nil
}

func (self *Extractor) decodeFollow(meta ActionMeta, payloadType string, payload []byte) (Action, error) {
	var p followPayload
	err := strict(payload, &p)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(p.Following) == "" {
		return nil, fmt.Errorf("%w: following", ErrMissingField)
	}
	following, ok := NormalizeUsername(p.Following)
	if !ok {
		return nil, fmt.Errorf("%w: following %q", ErrInvalidField, p.Following)
	}
	if following == meta.Author {
		return nil, fmt.Errorf("%w: can't follow yourself", ErrInvalidField)
	}

	return &FollowAction{
		ActionMeta: meta,
		Following:  following,
		Unfollow:   payloadType == PayloadTypeUnfollow,
	}, nil
}

func (self *Extractor) decodeHeart(meta ActionMeta, payload []byte) (Action, error) {
	var p heartPayload
	err := strict(payload, &p)
	if err != nil {
		return nil, err
	}

	target := strings.ToLower(strings.TrimSpace(p.TrxId))
	if target == "" {
		return nil, fmt.Errorf("%w: trx_id", ErrMissingField)
	}
	if !IsTrxId(target) {
		return nil, fmt.Errorf("%w: trx_id", ErrInvalidField)
	}

	return &HeartAction{
		ActionMeta:  meta,
		TargetTrxId: target,
	}, nil
}
