package service

import (
	"context"
	"sync"
	"testing"

	"github.com/ai-platform/aiplatform/internal/model"
	"github.com/ai-platform/aiplatform/internal/provider"
)

func TestRouteRejectsEmptyContentAndAttachments(t *testing.T) {
	db := setupTestDB(t, "router_empty")
	chat := &fakeClient{name: "chat", available: true, resp: &provider.Response{Text: "hi"}}
	router, chats := setupRouter(t, db, chat, nil, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	_, err := router.Route(context.Background(), 1, c.ID, RouteRequest{})
	if !provider.IsKind(err, provider.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	if chat.calls != 0 {
		t.Errorf("provider should not be invoked on invalid input, got %d calls", chat.calls)
	}
	if n := countMessages(t, db, c.ID); n != 0 {
		t.Errorf("expected no messages appended, got %d", n)
	}
}

func TestRouteRejectsUnresolvableAttachmentsWithEmptyContent(t *testing.T) {
	db := setupTestDB(t, "router_bad_attachment")
	chat := &fakeClient{name: "chat", available: true, resp: &provider.Response{Text: "hi"}}
	router, chats := setupRouter(t, db, chat, nil, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	_, err := router.Route(context.Background(), 1, c.ID, RouteRequest{
		Attachments: []string{"no-such-file.png"},
	})
	if !provider.IsKind(err, provider.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	if chat.calls != 0 {
		t.Errorf("provider must not be invoked, got %d calls", chat.calls)
	}
	// no empty-content message without attachments may survive
	if n := countMessages(t, db, c.ID); n != 0 {
		t.Errorf("expected no messages persisted, got %d", n)
	}
}

func TestRouteEmptyContentWithResolvableAttachmentLinks(t *testing.T) {
	db := setupTestDB(t, "router_attachment_only")
	chat := &fakeClient{name: "chat", available: true, resp: &provider.Response{Text: "an image of a cat"}}
	router, chats := setupRouter(t, db, chat, nil, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	upload := &model.MessageAttachment{UserID: 1, FileName: "cat.png", FilePath: "/tmp/cat.png", MimeType: "image/png"}
	if err := db.Create(upload).Error; err != nil {
		t.Fatalf("seed upload failed: %v", err)
	}

	result, err := router.Route(context.Background(), 1, c.ID, RouteRequest{
		Attachments: []string{"cat.png"},
	})
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if len(result.UserMessage.Attachments) != 1 {
		t.Fatalf("expected the attachment linked, got %+v", result.UserMessage.Attachments)
	}

	var reloaded model.MessageAttachment
	db.Where("file_name = ?", "cat.png").First(&reloaded)
	if reloaded.MessageID == nil || *reloaded.MessageID != result.UserMessage.ID {
		t.Error("attachment row must point at the user message")
	}
}

func TestRouteRejectsAttachmentUploadedByAnotherUser(t *testing.T) {
	db := setupTestDB(t, "router_foreign_attachment")
	chat := &fakeClient{name: "chat", available: true, resp: &provider.Response{Text: "hi"}}
	router, chats := setupRouter(t, db, chat, nil, nil, nil)
	c := createTestChat(t, chats, 2, model.AiTypeConversation)

	upload := &model.MessageAttachment{UserID: 1, FileName: "theirs.png", FilePath: "/tmp/theirs.png"}
	if err := db.Create(upload).Error; err != nil {
		t.Fatalf("seed upload failed: %v", err)
	}

	_, err := router.Route(context.Background(), 2, c.ID, RouteRequest{
		Attachments: []string{"theirs.png"},
	})
	if !provider.IsKind(err, provider.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}

	var reloaded model.MessageAttachment
	db.Where("file_name = ?", "theirs.png").First(&reloaded)
	if reloaded.MessageID != nil {
		t.Error("another user's upload must stay unlinked")
	}
}

func TestRouteSuccessAppendsBothTurns(t *testing.T) {
	db := setupTestDB(t, "router_success")
	chat := &fakeClient{name: "chat", available: true, resp: &provider.Response{Text: "assistant reply"}}
	router, chats := setupRouter(t, db, chat, nil, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	result, err := router.Route(context.Background(), 1, c.ID, RouteRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if result.AssistantMessage == nil || result.AssistantMessage.Content != "assistant reply" {
		t.Fatalf("unexpected assistant message: %+v", result.AssistantMessage)
	}
	if n := countMessages(t, db, c.ID); n != 2 {
		t.Errorf("expected 2 messages, got %d", n)
	}

	var reloaded model.Chat
	db.First(&reloaded, c.ID)
	if reloaded.MessageCount != 2 {
		t.Errorf("expected message count 2, got %d", reloaded.MessageCount)
	}
}

func TestRouteFailureKeepsUserMessage(t *testing.T) {
	db := setupTestDB(t, "router_failure")
	chat := &fakeClient{name: "chat", available: true,
		err: provider.Errorf(provider.KindUpstream, "model exploded")}
	router, chats := setupRouter(t, db, chat, nil, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	_, err := router.Route(context.Background(), 1, c.ID, RouteRequest{Prompt: "hello"})
	if !provider.IsKind(err, provider.KindUpstream) {
		t.Fatalf("expected upstream_error surfaced unchanged, got %v", err)
	}
	// the prompt stays in history with no assistant reply
	if n := countMessages(t, db, c.ID); n != 1 {
		t.Errorf("expected exactly the user message, got %d messages", n)
	}
	var msg model.Message
	db.Where("chat_id = ?", c.ID).First(&msg)
	if msg.Role != model.RoleUser {
		t.Errorf("surviving message should be the user turn, got %q", msg.Role)
	}
}

func TestRouteFallsBackWhenPrimaryUnavailable(t *testing.T) {
	db := setupTestDB(t, "router_fallback")
	primary := &fakeClient{name: "openrouter", available: false}
	fallback := &fakeClient{name: "local", available: true,
		resp: &provider.Response{Text: "[本地模型] simulated"}}
	router, chats := setupRouter(t, db, primary, fallback, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	result, err := router.Route(context.Background(), 1, c.ID, RouteRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if primary.calls != 0 {
		t.Errorf("unavailable primary must not be invoked")
	}
	if result.Provider != "local" {
		t.Errorf("expected fallback provider, got %q", result.Provider)
	}
	if result.AssistantMessage.Content != "[本地模型] simulated" {
		t.Errorf("assistant content should reflect the fallback response, got %q", result.AssistantMessage.Content)
	}
}

func TestRouteUnavailableWhenNoProvider(t *testing.T) {
	db := setupTestDB(t, "router_unavailable")
	primary := &fakeClient{name: "openrouter", available: false}
	router, chats := setupRouter(t, db, primary, nil, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	_, err := router.Route(context.Background(), 1, c.ID, RouteRequest{Prompt: "hello"})
	if !provider.IsKind(err, provider.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if primary.calls != 0 {
		t.Errorf("no provider may be invoked when none is available")
	}
	// the user message is still retained
	if n := countMessages(t, db, c.ID); n != 1 {
		t.Errorf("expected user message retained, got %d messages", n)
	}
}

func TestRouteUnknownAiTypeFallsBackToConversation(t *testing.T) {
	db := setupTestDB(t, "router_unknown_type")
	chat := &fakeClient{name: "chat", available: true, resp: &provider.Response{Text: "ok"}}
	router, chats := setupRouter(t, db, chat, nil, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	_, err := router.Route(context.Background(), 1, c.ID, RouteRequest{
		AiType: "quantum_telepathy",
		Prompt: "hello",
	})
	if err != nil {
		t.Fatalf("unknown AI type must not fail the request: %v", err)
	}
	if chat.lastReq.Capability != provider.ChatCompletion {
		t.Errorf("expected chat completion capability, got %q", chat.lastReq.Capability)
	}
}

func TestRouteAppliesDefaultModel(t *testing.T) {
	db := setupTestDB(t, "router_default_model")
	chat := &fakeClient{name: "chat", available: true, resp: &provider.Response{Text: "ok"}}
	router, chats := setupRouter(t, db, chat, nil, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	if _, err := router.Route(context.Background(), 1, c.ID, RouteRequest{Prompt: "hi"}); err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if chat.lastReq.Model != "openai/gpt-4.1-nano" {
		t.Errorf("expected configured default model, got %q", chat.lastReq.Model)
	}

	if _, err := router.Route(context.Background(), 1, c.ID, RouteRequest{Prompt: "hi", Model: "my-model"}); err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if chat.lastReq.Model != "my-model" {
		t.Errorf("explicit model must win, got %q", chat.lastReq.Model)
	}
}

func TestRoute3DCreateRecordsTaskPlaceholder(t *testing.T) {
	db := setupTestDB(t, "router_3d_create")
	threeD := &fakeClient{name: "meshy", available: true,
		resp: &provider.Response{TaskID: "task-123"}}
	router, chats := setupRouter(t, db, nil, nil, nil, threeD)
	c := createTestChat(t, chats, 1, model.AiTypeTextTo3D)

	result, err := router.Route(context.Background(), 1, c.ID, RouteRequest{
		AiType:   string(model.AiTypeTextTo3D),
		Prompt:   "a small castle",
		ArtStyle: "sculpture",
	})
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if result.TaskID != "task-123" {
		t.Fatalf("expected task id, got %q", result.TaskID)
	}
	if result.AssistantMessage != nil {
		t.Errorf("async capability must not append an assistant message")
	}
	if n := countMessages(t, db, c.ID); n != 1 {
		t.Errorf("expected only the user message, got %d", n)
	}

	var att model.MessageAttachment
	if err := db.Where("file_path = ?", "task-123").First(&att).Error; err != nil {
		t.Fatalf("task placeholder attachment not found: %v", err)
	}
	if att.MimeType != "3d/preview" {
		t.Errorf("expected 3d/preview mime tag, got %q", att.MimeType)
	}
	if att.FileSize != 0 {
		t.Errorf("placeholder must have zero size, got %d", att.FileSize)
	}
}

func TestRoute3DRefineUsesRefineCapability(t *testing.T) {
	db := setupTestDB(t, "router_3d_refine")
	threeD := &fakeClient{name: "meshy", available: true,
		resp: &provider.Response{TaskID: "task-456"}}
	router, chats := setupRouter(t, db, nil, nil, nil, threeD)
	c := createTestChat(t, chats, 1, model.AiTypeTextTo3D)

	_, err := router.Route(context.Background(), 1, c.ID, RouteRequest{
		AiType: string(model.AiTypeTextTo3D),
		Prompt: "more detail",
		Mode:   "refine",
		TaskID: "task-123",
	})
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if threeD.lastReq.Capability != provider.ThreeDRefine {
		t.Errorf("expected refine capability, got %q", threeD.lastReq.Capability)
	}
	var att model.MessageAttachment
	if err := db.Where("file_path = ?", "task-456").First(&att).Error; err != nil {
		t.Fatalf("refine placeholder not found: %v", err)
	}
	if att.MimeType != "3d/refine" {
		t.Errorf("expected 3d/refine mime tag, got %q", att.MimeType)
	}
}

func TestRoute3DParseErrorPersistsNoAttachment(t *testing.T) {
	db := setupTestDB(t, "router_3d_parse")
	threeD := &fakeClient{name: "meshy", available: true,
		err: provider.Errorf(provider.KindParse, "task response carried no result task id")}
	router, chats := setupRouter(t, db, nil, nil, nil, threeD)
	c := createTestChat(t, chats, 1, model.AiTypeTextTo3D)

	_, err := router.Route(context.Background(), 1, c.ID, RouteRequest{
		AiType: string(model.AiTypeTextTo3D),
		Prompt: "a malformed payload",
	})
	if !provider.IsKind(err, provider.KindParse) {
		t.Fatalf("expected parse_error, got %v", err)
	}
	var n int64
	db.Model(&model.MessageAttachment{}).Count(&n)
	if n != 0 {
		t.Errorf("no attachment row may be created on parse failure, got %d", n)
	}
}

func TestPollStatusIsStateless(t *testing.T) {
	db := setupTestDB(t, "router_poll")
	threeD := &fakeClient{name: "meshy", available: true,
		resp: &provider.Response{TaskID: "task-123", Raw: []byte(`{"status":"IN_PROGRESS"}`)}}
	router, _ := setupRouter(t, db, nil, nil, nil, threeD)

	raw, err := router.PollStatus(context.Background(), "task-123")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if string(raw) != `{"status":"IN_PROGRESS"}` {
		t.Errorf("unexpected payload: %s", raw)
	}
	if threeD.lastReq.Capability != provider.ThreeDStatus {
		t.Errorf("expected status capability, got %q", threeD.lastReq.Capability)
	}

	var messages, attachments int64
	db.Model(&model.Message{}).Count(&messages)
	db.Model(&model.MessageAttachment{}).Count(&attachments)
	if messages != 0 || attachments != 0 {
		t.Errorf("polling must not persist anything, got %d messages, %d attachments", messages, attachments)
	}
}

func TestThreeDHistoryReconstruction(t *testing.T) {
	db := setupTestDB(t, "router_3d_history")
	threeD := &fakeClient{name: "meshy", available: true,
		resp: &provider.Response{TaskID: "task-aaa"}}
	router, chats := setupRouter(t, db, nil, nil, nil, threeD)
	c := createTestChat(t, chats, 7, model.AiTypeTextTo3D)

	_, err := router.Route(context.Background(), 7, c.ID, RouteRequest{
		AiType:   string(model.AiTypeTextTo3D),
		Prompt:   "a bronze statue",
		ArtStyle: "realistic",
	})
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}

	records, err := router.ThreeDHistory(7)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.TaskID != "task-aaa" || rec.Mode != "preview" || rec.ArtStyle != "realistic" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Prompt != "a bronze statue" {
		t.Errorf("prompt should come from the user message, got %q", rec.Prompt)
	}
}

func TestChatLockSetStaysBounded(t *testing.T) {
	db := setupTestDB(t, "router_locks")
	router, _ := setupRouter(t, db, nil, nil, nil, nil)

	if router.lockChat(7) != router.lockChat(7) {
		t.Fatal("same chat id must map to the same mutex")
	}

	seen := map[*sync.Mutex]struct{}{}
	for i := 0; i < 10000; i++ {
		seen[router.lockChat(uint(i))] = struct{}{}
	}
	if len(seen) > len(router.chatLocks) {
		t.Errorf("lock set must stay bounded, got %d distinct mutexes", len(seen))
	}
}

func TestRouteRejectsForeignChat(t *testing.T) {
	db := setupTestDB(t, "router_foreign_chat")
	chat := &fakeClient{name: "chat", available: true, resp: &provider.Response{Text: "ok"}}
	router, chats := setupRouter(t, db, chat, nil, nil, nil)
	c := createTestChat(t, chats, 1, model.AiTypeConversation)

	_, err := router.Route(context.Background(), 2, c.ID, RouteRequest{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error for chat owned by another user")
	}
	if chat.calls != 0 {
		t.Errorf("provider must not be invoked for a foreign chat")
	}
}
