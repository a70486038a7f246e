package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"yuzu/internal/ai/provider"
	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
	"yuzu/internal/pkg/ctxutil"
)

// fakeStream 可编排的片段序列
type fakeStream struct {
	fragments []string
	failAfter error // 片段发完后返回该错误（nil 则 io.EOF）
	block     bool  // 片段发完后阻塞直到 streamCtx 取消
	streamCtx context.Context
	meta      *model.GenerationMetadata
	idx       int
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.idx < len(s.fragments) {
		f := s.fragments[s.idx]
		s.idx++
		return f, nil
	}
	if s.block && s.streamCtx != nil {
		<-s.streamCtx.Done()
		return "", s.streamCtx.Err()
	}
	if s.failAfter != nil {
		return "", s.failAfter
	}
	return "", io.EOF
}

func (s *fakeStream) Metadata() *model.GenerationMetadata { return s.meta }
func (s *fakeStream) Close() error                        { s.closed = true; return nil }

// fakeGenerator 可编排的 AI 能力层
type fakeGenerator struct {
	mu        sync.Mutex
	streams   []*fakeStream
	streamErr error
	result    *provider.Result
	genErr    error
	calls     int
	lastMsgs  []model.ChatMessage
	lastCfg   model.ChatConfig
}

func (g *fakeGenerator) Stream(ctx context.Context, msgs []model.ChatMessage, cfg model.ChatConfig) (provider.FragmentStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastMsgs = msgs
	g.lastCfg = cfg
	if g.streamErr != nil {
		return nil, g.streamErr
	}
	s := g.streams[0]
	if len(g.streams) > 1 {
		g.streams = g.streams[1:]
	}
	s.streamCtx = ctx
	return s, nil
}

func (g *fakeGenerator) Generate(ctx context.Context, msgs []model.ChatMessage, cfg model.ChatConfig) (*provider.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastMsgs = msgs
	g.lastCfg = cfg
	if g.genErr != nil {
		return nil, g.genErr
	}
	return g.result, nil
}

// fakeConvStore 内存对话存储
type fakeConvStore struct {
	mu        sync.Mutex
	conv      *model.Conversation
	renamedTo string
	touched   int
}

func (s *fakeConvStore) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil || s.conv.ID.Hex() != id {
		return nil, apperr.ErrNotFound
	}
	c := *s.conv
	return &c, nil
}

func (s *fakeConvStore) RenameIfUntitled(ctx context.Context, id string, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv.Title == model.TitleSentinel {
		s.conv.Title = title
		s.renamedTo = title
	}
	return nil
}

func (s *fakeConvStore) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched++
	return nil
}

// fakeMsgStore 内存消息存储
type fakeMsgStore struct {
	mu            sync.Mutex
	messages      []*model.Message
	failAssistant bool // assistant 消息写入失败
}

func (s *fakeMsgStore) Create(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Role == model.RoleAssistant && s.failAssistant {
		return errors.New("write failed")
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeMsgStore) ListByConversation(ctx context.Context, conversationID string) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

func (s *fakeMsgStore) byRole(role string) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Message
	for _, m := range s.messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// fakeNotifier 记录发布的事件
type fakeNotifier struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (n *fakeNotifier) Publish(ctx context.Context, userID string, event model.SessionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestFixture(title string) (*fakeGenerator, *fakeConvStore, *fakeMsgStore, *fakeNotifier, string) {
	conv := &model.Conversation{
		ID:     primitive.NewObjectID(),
		UserID: "user-1",
		Title:  title,
		Model:  "o3-mini",
	}
	return &fakeGenerator{}, &fakeConvStore{conv: conv}, &fakeMsgStore{}, &fakeNotifier{}, conv.ID.Hex()
}

func authedCtx(userID string, isAdmin bool) context.Context {
	return ctxutil.WithPrincipal(context.Background(), ctxutil.Principal{UserID: userID, IsAdmin: isAdmin})
}

// drain 读完流并返回全部块
func drain(t *testing.T, ch <-chan *model.StreamChunk) []*model.StreamChunk {
	t.Helper()
	var chunks []*model.StreamChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-timeout:
			t.Fatal("stream did not close in time")
		}
	}
}

func TestChatServiceStream(t *testing.T) {
	Convey("流式对话", t, func() {
		gen, convs, msgs, notifier, convID := newTestFixture("既存のタイトル")
		meta := &model.GenerationMetadata{
			ResponseID: "resp-1",
			Model:      "o3-mini",
			Usage:      model.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		}
		svc := NewChatService(gen, convs, msgs, notifier, "o3-mini")

		Convey("正常完成：片段顺序转发，恰好一个终端块", func() {
			gen.streams = []*fakeStream{{fragments: []string{"こん", "にちは", "！"}, meta: meta}}

			ch, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "挨拶して"})
			So(err, ShouldBeNil)

			chunks := drain(t, ch)
			So(len(chunks), ShouldEqual, 4)

			terminals := 0
			var contents []string
			for _, c := range chunks {
				if c.IsLast {
					terminals++
				} else {
					contents = append(contents, c.Content)
				}
			}
			So(terminals, ShouldEqual, 1)
			So(chunks[len(chunks)-1].IsLast, ShouldBeTrue)
			So(contents, ShouldResemble, []string{"こん", "にちは", "！"})
			So(chunks[len(chunks)-1].Metadata, ShouldNotBeNil)
			So(chunks[len(chunks)-1].Metadata.ResponseID, ShouldEqual, "resp-1")
			So(chunks[len(chunks)-1].Error, ShouldBeEmpty)
		})

		Convey("正常完成：assistant 消息は累積全文で保存される", func() {
			gen.streams = []*fakeStream{{fragments: []string{"回答", "の", "断片"}, meta: meta}}

			ch, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "質問"})
			So(err, ShouldBeNil)
			drain(t, ch)

			userMsgs := msgs.byRole(model.RoleUser)
			So(len(userMsgs), ShouldEqual, 1)
			So(userMsgs[0].Content, ShouldEqual, "質問")

			assistantMsgs := msgs.byRole(model.RoleAssistant)
			So(len(assistantMsgs), ShouldEqual, 1)
			So(assistantMsgs[0].Content, ShouldEqual, "回答の断片")
			So(assistantMsgs[0].Metadata, ShouldNotBeNil)
			So(assistantMsgs[0].Metadata.Usage.TotalTokens, ShouldEqual, 30)

			So(convs.touched, ShouldBeGreaterThan, 0)
			So(notifier.types(), ShouldContain, "completed")
		})

		Convey("未登録モデル：エラーを返し、一切永続化しない", func() {
			ch, err := svc.Stream(authedCtx("user-1", false), convID,
				&model.SubmitChatRequest{Message: "hi", Model: "no-such-model"})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, apperr.ErrUnknownModel), ShouldBeTrue)
			So(ch, ShouldBeNil)
			So(len(msgs.messages), ShouldEqual, 0)
		})

		Convey("認証なし：ErrUnauthenticated", func() {
			_, err := svc.Stream(context.Background(), convID, &model.SubmitChatRequest{Message: "hi"})
			So(errors.Is(err, apperr.ErrUnauthenticated), ShouldBeTrue)
		})

		Convey("他人の対話：ErrForbidden、admin は許可", func() {
			_, err := svc.Stream(authedCtx("user-2", false), convID, &model.SubmitChatRequest{Message: "hi"})
			So(errors.Is(err, apperr.ErrForbidden), ShouldBeTrue)

			gen.streams = []*fakeStream{{fragments: []string{"ok"}, meta: meta}}
			ch, err := svc.Stream(authedCtx("admin-1", true), convID, &model.SubmitChatRequest{Message: "hi"})
			So(err, ShouldBeNil)
			drain(t, ch)
		})

		Convey("存在しない対話：ErrNotFound", func() {
			_, err := svc.Stream(authedCtx("user-1", false), primitive.NewObjectID().Hex(),
				&model.SubmitChatRequest{Message: "hi"})
			So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
		})

		Convey("上游で途中失敗：エラー終端ブロックを出し、assistant は保存しない", func() {
			gen.streams = []*fakeStream{{
				fragments: []string{"途中", "まで"},
				failAfter: apperr.Upstream(errors.New("connection reset")),
				meta:      meta,
			}}

			ch, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "hi"})
			So(err, ShouldBeNil)

			chunks := drain(t, ch)
			last := chunks[len(chunks)-1]
			So(last.IsLast, ShouldBeTrue)
			So(last.Error, ShouldEqual, "upstream_unavailable")
			So(len(msgs.byRole(model.RoleAssistant)), ShouldEqual, 0)
			// 用户消息は残る
			So(len(msgs.byRole(model.RoleUser)), ShouldEqual, 1)
		})

		Convey("上游限流：rate_limited の終端ブロック", func() {
			gen.streamErr = &apperr.RateLimitError{Message: "quota exceeded"}

			ch, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "hi"})
			So(err, ShouldBeNil)

			chunks := drain(t, ch)
			So(len(chunks), ShouldEqual, 1)
			So(chunks[0].IsLast, ShouldBeTrue)
			So(chunks[0].Error, ShouldEqual, "rate_limited")
		})

		Convey("キャンセル：終端ブロックなしで閉じ、assistant は保存しない", func() {
			gen.streams = []*fakeStream{{
				fragments: []string{"部分", "応答"},
				failAfter: context.Canceled,
				meta:      meta,
			}}

			ch, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "hi"})
			So(err, ShouldBeNil)

			chunks := drain(t, ch)
			for _, c := range chunks {
				So(c.IsLast, ShouldBeFalse)
			}
			So(len(msgs.byRole(model.RoleAssistant)), ShouldEqual, 0)
		})

		Convey("永続化失敗：終端ブロックの Error に persistence_failure", func() {
			gen.streams = []*fakeStream{{fragments: []string{"応答"}, meta: meta}}
			msgs.failAssistant = true

			ch, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "hi"})
			So(err, ShouldBeNil)

			chunks := drain(t, ch)
			last := chunks[len(chunks)-1]
			So(last.IsLast, ShouldBeTrue)
			So(last.Error, ShouldEqual, "persistence_failure")
			So(last.Metadata, ShouldNotBeNil)
		})

		Convey("同一対話の再提出：先行ストリームを打ち切って置き換える", func() {
			first := &fakeStream{fragments: []string{"古い"}, block: true, meta: meta}
			second := &fakeStream{fragments: []string{"新しい", "応答"}, meta: meta}
			gen.streams = []*fakeStream{first, second}

			ch1, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "一回目"})
			So(err, ShouldBeNil)

			// 先行ストリームが最初の片段を出すまで待つ
			select {
			case <-ch1:
			case <-time.After(5 * time.Second):
				t.Fatal("first stream produced nothing")
			}

			ch2, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "二回目"})
			So(err, ShouldBeNil)

			// 先行は終端ブロックなしで閉じる
			rest1 := drain(t, ch1)
			for _, c := range rest1 {
				So(c.IsLast, ShouldBeFalse)
			}

			chunks2 := drain(t, ch2)
			So(chunks2[len(chunks2)-1].IsLast, ShouldBeTrue)
			So(len(msgs.byRole(model.RoleAssistant)), ShouldEqual, 1)
			So(msgs.byRole(model.RoleAssistant)[0].Content, ShouldEqual, "新しい応答")
		})
	})
}

func TestChatServiceTitleRename(t *testing.T) {
	Convey("初回対話完了時の自動改名", t, func() {
		meta := &model.GenerationMetadata{ResponseID: "r", Model: "o3-mini"}

		Convey("占位タイトルのとき、ユーザー入力の先頭50文字に改名", func() {
			gen, convs, msgs, notifier, convID := newTestFixture(model.TitleSentinel)
			svc := NewChatService(gen, convs, msgs, notifier, "o3-mini")
			gen.streams = []*fakeStream{{fragments: []string{"応答"}, meta: meta}}

			long := strings.Repeat("あ", 60)
			ch, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: long})
			So(err, ShouldBeNil)
			drain(t, ch)

			So(convs.renamedTo, ShouldEqual, strings.Repeat("あ", 50))
			So(notifier.types(), ShouldContain, "renamed")
		})

		Convey("既にタイトルがあるときは改名しない", func() {
			gen, convs, msgs, notifier, convID := newTestFixture("既存のタイトル")
			svc := NewChatService(gen, convs, msgs, notifier, "o3-mini")
			gen.streams = []*fakeStream{{fragments: []string{"応答"}, meta: meta}}

			ch, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "質問"})
			So(err, ShouldBeNil)
			drain(t, ch)

			So(convs.renamedTo, ShouldBeEmpty)
			So(notifier.types(), ShouldNotContain, "renamed")
		})
	})
}

func TestChatServiceHistory(t *testing.T) {
	Convey("履歴の組み立て", t, func() {
		gen, convs, msgs, notifier, convID := newTestFixture("t")
		svc := NewChatService(gen, convs, msgs, notifier, "o3-mini")
		meta := &model.GenerationMetadata{ResponseID: "r", Model: "o3-mini"}

		// 既存の往復を仕込む
		msgs.messages = []*model.Message{
			{ConversationID: convs.conv.ID, Role: model.RoleUser, Content: "前の質問"},
			{ConversationID: convs.conv.ID, Role: model.RoleAssistant, Content: "前の回答"},
		}
		gen.streams = []*fakeStream{{fragments: []string{"新回答"}, meta: meta}}

		ch, err := svc.Stream(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "新しい質問"})
		So(err, ShouldBeNil)
		drain(t, ch)

		Convey("Provider へは既存履歴＋新規入力の順で渡る", func() {
			So(len(gen.lastMsgs), ShouldEqual, 3)
			So(gen.lastMsgs[0].Content, ShouldEqual, "前の質問")
			So(gen.lastMsgs[1].Content, ShouldEqual, "前の回答")
			So(gen.lastMsgs[2].Role, ShouldEqual, model.RoleUser)
			So(gen.lastMsgs[2].Content, ShouldEqual, "新しい質問")
		})
	})
}

func TestChatServiceComplete(t *testing.T) {
	Convey("非流式対話", t, func() {
		gen, convs, msgs, notifier, convID := newTestFixture(model.TitleSentinel)
		svc := NewChatService(gen, convs, msgs, notifier, "o3-mini")

		Convey("正常完了：両方のメッセージが保存される", func() {
			gen.result = &provider.Result{
				Content:  "完全な回答",
				Metadata: model.GenerationMetadata{ResponseID: "r1", Model: "o3-mini"},
			}

			resp, err := svc.Complete(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "質問"})
			So(err, ShouldBeNil)
			So(resp.Content, ShouldEqual, "完全な回答")
			So(resp.IsLast, ShouldBeTrue)
			So(len(msgs.byRole(model.RoleUser)), ShouldEqual, 1)
			So(len(msgs.byRole(model.RoleAssistant)), ShouldEqual, 1)
			So(convs.renamedTo, ShouldEqual, "質問")
		})

		Convey("生成失敗：ユーザー消息は残り、assistant は保存されない", func() {
			gen.genErr = apperr.Upstream(errors.New("boom"))

			_, err := svc.Complete(authedCtx("user-1", false), convID, &model.SubmitChatRequest{Message: "質問"})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, apperr.ErrUpstreamUnavailable), ShouldBeTrue)
			So(len(msgs.byRole(model.RoleUser)), ShouldEqual, 1)
			So(len(msgs.byRole(model.RoleAssistant)), ShouldEqual, 0)
		})
	})
}

func TestChatServiceSaveAndList(t *testing.T) {
	Convey("保存と一覧", t, func() {
		gen, convs, msgs, notifier, convID := newTestFixture("t")
		svc := NewChatService(gen, convs, msgs, notifier, "o3-mini")

		Convey("SaveAssistantMessage は生成なしで保存だけ行う", func() {
			msg, err := svc.SaveAssistantMessage(authedCtx("user-1", false), convID, "クライアント側の全文")
			So(err, ShouldBeNil)
			So(msg.Role, ShouldEqual, model.RoleAssistant)
			So(gen.calls, ShouldEqual, 0)
			So(len(msgs.byRole(model.RoleAssistant)), ShouldEqual, 1)
		})

		Convey("他人の対話への保存は拒否", func() {
			_, err := svc.SaveAssistantMessage(authedCtx("user-2", false), convID, "x")
			So(errors.Is(err, apperr.ErrForbidden), ShouldBeTrue)
		})

		Convey("ListMessages は所有者チェック後に全件返す", func() {
			msgs.messages = []*model.Message{
				{Role: model.RoleUser, Content: "a"},
				{Role: model.RoleAssistant, Content: "b"},
			}
			out, err := svc.ListMessages(authedCtx("user-1", false), convID)
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 2)

			_, err = svc.ListMessages(authedCtx("user-2", false), convID)
			So(errors.Is(err, apperr.ErrForbidden), ShouldBeTrue)
		})
	})
}
