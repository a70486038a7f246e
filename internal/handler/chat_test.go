package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"yuzu/internal/ai/provider"
	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
	"yuzu/internal/pkg/ctxutil"
	"yuzu/internal/service"
)

type stubStream struct {
	fragments []string
	meta      *model.GenerationMetadata
	idx       int
}

func (s *stubStream) Recv() (string, error) {
	if s.idx >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.idx]
	s.idx++
	return f, nil
}

func (s *stubStream) Metadata() *model.GenerationMetadata { return s.meta }
func (s *stubStream) Close() error                        { return nil }

type stubGenerator struct {
	stream *stubStream
}

func (g *stubGenerator) Stream(ctx context.Context, msgs []model.ChatMessage, cfg model.ChatConfig) (provider.FragmentStream, error) {
	return g.stream, nil
}

func (g *stubGenerator) Generate(ctx context.Context, msgs []model.ChatMessage, cfg model.ChatConfig) (*provider.Result, error) {
	return &provider.Result{Content: "ok"}, nil
}

type stubConvStore struct {
	conv *model.Conversation
}

func (s *stubConvStore) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	if s.conv == nil || s.conv.ID.Hex() != id {
		return nil, apperr.ErrNotFound
	}
	return s.conv, nil
}

func (s *stubConvStore) RenameIfUntitled(ctx context.Context, id, title string) error { return nil }
func (s *stubConvStore) Touch(ctx context.Context, id string) error                   { return nil }

type stubMsgStore struct {
	messages []*model.Message
}

func (s *stubMsgStore) Create(ctx context.Context, msg *model.Message) error {
	s.messages = append(s.messages, msg)
	return nil
}

func (s *stubMsgStore) ListByConversation(ctx context.Context, conversationID string) ([]*model.Message, error) {
	return s.messages, nil
}

// injectPrincipal 测试用：绕过JWT中间件直接注入身份
func injectPrincipal(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithPrincipal(c.Request.Context(), ctxutil.Principal{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func newTestRouter(gen service.Generator, convs service.ConversationStore, msgs service.MessageStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewChatService(gen, convs, msgs, nil, "o3-mini")
	hdl := NewChatHandler(svc)

	r := gin.New()
	r.Use(injectPrincipal("user-1"))
	r.POST("/api/v1/chat/:id", hdl.Stream)
	r.GET("/api/v1/chat/:id/messages", hdl.ListMessages)
	return r
}

func TestChatStreamEndpoint(t *testing.T) {
	Convey("NDJSON 流式接口", t, func() {
		conv := &model.Conversation{ID: primitive.NewObjectID(), UserID: "user-1", Title: "t", Model: "o3-mini"}
		gen := &stubGenerator{stream: &stubStream{
			fragments: []string{"こん", "にちは"},
			meta:      &model.GenerationMetadata{ResponseID: "r1", Model: "o3-mini"},
		}}
		msgs := &stubMsgStore{}
		router := newTestRouter(gen, &stubConvStore{conv: conv}, msgs)

		Convey("每行一个JSON块，最后一块 isLast=true", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/"+conv.ID.Hex(),
				strings.NewReader(`{"message":"挨拶して"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/x-ndjson")

			var chunks []model.StreamChunk
			scanner := bufio.NewScanner(w.Body)
			for scanner.Scan() {
				var chunk model.StreamChunk
				So(json.Unmarshal(scanner.Bytes(), &chunk), ShouldBeNil)
				chunks = append(chunks, chunk)
			}

			So(len(chunks), ShouldEqual, 3)
			So(chunks[0].Content, ShouldEqual, "こん")
			So(chunks[1].Content, ShouldEqual, "にちは")
			So(chunks[2].IsLast, ShouldBeTrue)
			So(chunks[2].Metadata, ShouldNotBeNil)
		})

		Convey("未注册模型返回 400，不进入流式响应", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/"+conv.ID.Hex(),
				strings.NewReader(`{"message":"hi","model":"no-such"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusBadRequest)

			var resp model.ErrorResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Code, ShouldEqual, 40002)
		})

		Convey("存在しない対話は 404", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/"+primitive.NewObjectID().Hex(),
				strings.NewReader(`{"message":"hi"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("不正な reasoningEffort は 400", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/"+conv.ID.Hex(),
				strings.NewReader(`{"message":"hi","reasoningEffort":"extreme"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("消息一覧は no-store 付きで返す", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/"+conv.ID.Hex()+"/messages", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Cache-Control"), ShouldEqual, "no-store")
		})
	})
}
