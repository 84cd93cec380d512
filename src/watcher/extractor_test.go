package watcher

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/hive-micro/watcher/src/utils/config"
	"github.com/hive-micro/watcher/src/utils/hive"
	"github.com/hive-micro/watcher/src/utils/hive/hivetest"

	"github.com/stretchr/testify/suite"
)

func TestExtractorTestSuite(t *testing.T) {
	suite.Run(t, new(ExtractorTestSuite))
}

type ExtractorTestSuite struct {
	suite.Suite
	config    *config.Config
	extractor *Extractor
}

func trxId(n int) string {
	return fmt.Sprintf("%040x", n)
}

func (s *ExtractorTestSuite) SetupTest() {
	s.config = config.Default()
	s.config.Watcher.AppIds = []string{"hive.micro", "hivemicro"}
	s.extractor = NewExtractor(s.config)
}

func (s *ExtractorTestSuite) decode(op hive.Operation) (Action, error) {
	block := hivetest.NewBlock(500, hivetest.Tx(trxId(1), op))
	return s.extractor.Decode(block, 0, 0)
}

func (s *ExtractorTestSuite) TestPost() {
	block := hivetest.NewBlock(500, hivetest.Tx(trxId(1),
		hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"hello #test @bob"}`),
	))

	actions, dropped := s.extractor.Extract(block)
	s.Require().Zero(dropped)
	s.Require().Len(actions, 1)

	post, ok := actions[0].(*PostAction)
	s.Require().True(ok)
	s.Equal(ActionKindPost, post.Kind())
	s.Equal(trxId(1), post.TrxId)
	s.Equal(int64(500), post.BlockNum)
	s.Equal(block.Timestamp.Time, post.Timestamp)
	s.Equal("alice", post.Author)
	s.Equal("hive.micro", post.AppId)
	s.Equal("post", post.Type)
	s.Equal("hello #test @bob", post.Content)
	s.Equal([]string{"test"}, post.Tags)
	s.Equal([]string{"bob"}, post.Mentions)
	s.Empty(post.ReplyTo)
	s.JSONEq(`{"type":"post","content":"hello #test @bob"}`, string(post.RawJson))
}

func (s *ExtractorTestSuite) TestPayloadListsWin() {
	action, err := s.decode(hivetest.CustomJson("hive.micro", "alice", map[string]any{
		"type":     "post",
		"content":  "hello #test @bob",
		"tags":     []string{"Hive", "hive", "bad tag"},
		"mentions": []string{"@Carol"},
	}))
	s.Require().NoError(err)
	post := action.(*PostAction)
	s.Equal([]string{"hive"}, post.Tags)
	s.Equal([]string{"carol"}, post.Mentions)
}

func (s *ExtractorTestSuite) TestEmptyPayloadListsFallBackToContent() {
	action, err := s.decode(hivetest.CustomJson("hive.micro", "alice", map[string]any{
		"type":     "post",
		"content":  "hello #test @bob",
		"tags":     []string{},
		"mentions": []string{},
	}))
	s.Require().NoError(err)
	post := action.(*PostAction)
	s.Equal([]string{"test"}, post.Tags)
	s.Equal([]string{"bob"}, post.Mentions)
}

func (s *ExtractorTestSuite) TestReply() {
	action, err := s.decode(hivetest.CustomJson("hive.micro", "alice", map[string]any{
		"type":     "reply",
		"content":  "agreed",
		"reply_to": strings.ToUpper(trxId(7)),
	}))
	s.Require().NoError(err)
	post := action.(*PostAction)
	s.Equal("reply", post.Type)
	s.Equal(trxId(7), post.ReplyTo)

	// Post with reply_to is a reply as well
	action, err = s.decode(hivetest.CustomJson("hive.micro", "alice", map[string]any{
		"type":     "post",
		"content":  "agreed",
		"reply_to": trxId(7),
	}))
	s.Require().NoError(err)
	s.Equal("reply", action.(*PostAction).Type)

	_, err = s.decode(hivetest.CustomJson("hive.micro", "alice", map[string]any{"type": "reply", "content": "where?"}))
	s.ErrorIs(err, ErrMissingField)

	_, err = s.decode(hivetest.CustomJson("hive.micro", "alice", map[string]any{"type": "reply", "content": "x", "reply_to": "not-an-id"}))
	s.ErrorIs(err, ErrInvalidField)

	_, err = s.decode(hivetest.CustomJson("hive.micro", "alice", map[string]any{"type": "reply", "content": "x", "reply_to": trxId(1)}))
	s.ErrorIs(err, ErrInvalidField)
}

func (s *ExtractorTestSuite) TestOtherVariants() {
	action, err := s.decode(hivetest.CustomJson("hive.micro", "mod", map[string]any{
		"type": "moderate", "action": "Hide", "trx_id": trxId(3), "reason": "spam",
	}))
	s.Require().NoError(err)
	moderation := action.(*ModerationAction)
	s.Equal(ActionKindModeration, moderation.Kind())
	s.Equal("hide", moderation.Action)
	s.Equal(trxId(3), moderation.TargetTrxId)
	s.Equal("spam", moderation.Reason)

	action, err = s.decode(hivetest.CustomJson("hive.micro", "alice", map[string]any{"type": "unfollow", "following": "@Bob"}))
	s.Require().NoError(err)
	follow := action.(*FollowAction)
	s.Equal(ActionKindFollow, follow.Kind())
	s.Equal("bob", follow.Following)
	s.True(follow.Unfollow)

	action, err = s.decode(hivetest.CustomJson("hive.micro", "alice", map[string]any{"type": "heart", "trx_id": trxId(3)}))
	s.Require().NoError(err)
	s.Equal(ActionKindHeart, action.Kind())
	s.Equal(trxId(3), action.(*HeartAction).TargetTrxId)
	s.Equal("alice", action.Meta().Author)
}

func (s *ExtractorTestSuite) TestLegacyAppId() {
	action, err := s.decode(hivetest.CustomJson("hivemicro", "alice", `{"type":"post","content":"old"}`))
	s.Require().NoError(err)
	s.Equal("hivemicro", action.Meta().AppId)
}

func (s *ExtractorTestSuite) TestIgnoresOtherOperations() {
	for _, op := range []hive.Operation{
		hivetest.Vote("alice"),
		hivetest.CustomJson("follow", "alice", `["follow",{"follower":"alice","following":"bob"}]`),
		hivetest.CustomJson("other.app", "alice", `{"type":"post","content":"hi"}`),
	} {
		action, err := s.decode(op)
		s.NoError(err)
		s.Nil(action)
	}
}

func (s *ExtractorTestSuite) TestOtherAppsAreNotCounted() {
	odd := hive.Operation{
		Type:  hive.OperationCustomJson,
		Value: json.RawMessage(`{"id":"other.app","required_posting_auths":"alice","json":5}`),
	}
	block := hivetest.NewBlock(500, hivetest.Tx(trxId(1), odd))

	actions, dropped := s.extractor.Extract(block)
	s.Empty(actions)
	s.Zero(dropped)

	// Same shape under our id is malformed
	ours := hive.Operation{
		Type:  hive.OperationCustomJson,
		Value: json.RawMessage(`{"id":"hive.micro","required_posting_auths":"alice","json":5}`),
	}
	_, err := s.decode(ours)
	s.ErrorIs(err, ErrMalformedPayload)
}

func (s *ExtractorTestSuite) TestMalformed() {
	s.config.Watcher.MaxContentLength = 10
	s.config.Watcher.MaxTags = 2
	s.config.Watcher.MaxPayloadBytes = 200
	s.config.Watcher.MaxPayloadFields = 4
	s.extractor = NewExtractor(s.config)

	for _, tc := range []struct {
		name   string
		op     hive.Operation
		trxId  string
		target error
	}{
		{"not json", hivetest.CustomJson("hive.micro", "alice", `{"type":`), trxId(1), ErrMalformedPayload},
		{"not an object", hivetest.CustomJson("hive.micro", "alice", `["post"]`), trxId(1), ErrMalformedPayload},
		{"no type", hivetest.CustomJson("hive.micro", "alice", `{"content":"x"}`), trxId(1), ErrMissingField},
		{"unknown type", hivetest.CustomJson("hive.micro", "alice", `{"type":"poll"}`), trxId(1), ErrUnknownActionType},
		{"no content", hivetest.CustomJson("hive.micro", "alice", `{"type":"post"}`), trxId(1), ErrMissingField},
		{"blank content", hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"   "}`), trxId(1), ErrInvalidField},
		{"content type", hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":5}`), trxId(1), ErrInvalidField},
		{"content too long", hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"ąąąąąąąąąąą"}`), trxId(1), ErrLimitExceeded},
		{"too many tags", hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"#a #b #c"}`), trxId(1), ErrLimitExceeded},
		{"too many fields", hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"x","a":1,"b":2,"c":3}`), trxId(1), ErrTooManyFields},
		{"too large", hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"`+strings.Repeat("x", 300)+`"}`), trxId(1), ErrPayloadTooLarge},
		{"no author", hivetest.CustomJson("hive.micro", "", `{"type":"post","content":"x"}`), trxId(1), ErrAmbiguousAuthor},
		{"two authors", hivetest.CustomJsonWithAuths("hive.micro", []string{"alice", "bob"}, `{"type":"post","content":"x"}`), trxId(1), ErrAmbiguousAuthor},
		{"invalid author", hivetest.CustomJson("hive.micro", "x", `{"type":"post","content":"x"}`), trxId(1), ErrInvalidAuthor},
		{"no trx id", hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"x"}`), "", ErrMissingTrxId},
		{"bad moderation", hivetest.CustomJson("hive.micro", "mod", `{"type":"moderate","action":"delete","trx_id":"`+trxId(2)+`"}`), trxId(1), ErrInvalidField},
		{"moderation target", hivetest.CustomJson("hive.micro", "mod", `{"type":"moderate","action":"hide"}`), trxId(1), ErrMissingField},
		{"follow self", hivetest.CustomJson("hive.micro", "alice", `{"type":"follow","following":"alice"}`), trxId(1), ErrInvalidField},
		{"follow nobody", hivetest.CustomJson("hive.micro", "alice", `{"type":"follow"}`), trxId(1), ErrMissingField},
		{"NUL in content", hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"hi\u0000there"}`), trxId(1), ErrInvalidField},
		{"NUL in reason", hivetest.CustomJson("hive.micro", "mod", `{"type":"moderate","action":"hide","trx_id":"`+trxId(2)+`","reason":"\u0000"}`), trxId(1), ErrInvalidField},
		{"NUL in tags", hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"x","tags":["a\u0000"]}`), trxId(1), ErrInvalidField},
		{"heart nothing", hivetest.CustomJson("hive.micro", "alice", `{"type":"heart","trx_id":"?"}`), trxId(1), ErrInvalidField},
	} {
		block := hivetest.NewBlock(500, hivetest.Tx(tc.trxId, tc.op))
		action, err := s.extractor.Decode(block, 0, 0)
		s.Nil(action, tc.name)
		s.ErrorIs(err, tc.target, tc.name)
		s.ErrorIs(err, ErrMalformedPayload, tc.name)
	}
}

func (s *ExtractorTestSuite) TestMalformedIsolation() {
	block := hivetest.NewBlock(600,
		hivetest.Tx(trxId(1), hivetest.CustomJson("hive.micro", "alice", `{"type":"post","content":"one"}`)),
		hivetest.Tx(trxId(2), hivetest.CustomJson("hive.micro", "alice", `{"type":"post"`)),
		hivetest.Tx(trxId(3), hivetest.Vote("bob"), hivetest.CustomJson("hive.micro", "bob", `{"type":"post","content":"two"}`)),
		hivetest.Tx(trxId(4), hivetest.CustomJson("hive.micro", "carol", `{"type":"post","content":"three"}`)),
		hivetest.Tx(trxId(5), hivetest.CustomJson("hive.micro", "dave", `{"type":"post","content":"four"}`)),
	)

	actions, dropped := s.extractor.Extract(block)
	s.Equal(1, dropped)
	s.Require().Len(actions, 4)

	// Block order is kept
	for i, expected := range []string{trxId(1), trxId(3), trxId(4), trxId(5)} {
		s.Equal(expected, actions[i].Meta().TrxId)
	}
	s.Equal(1, actions[1].Meta().OpIndex)
	s.Equal(2, actions[1].Meta().TxIndex)
}
