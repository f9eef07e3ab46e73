package service

import (
	"testing"

	"github.com/ai-platform/aiplatform/internal/model"
)

func TestAppendMessageBumpsCountAndActivity(t *testing.T) {
	db := setupTestDB(t, "chat_append")
	chats := setupChatService(t, db)
	chat := createTestChat(t, chats, 1, model.AiTypeConversation)
	before := chat.LastActivity

	if _, err := chats.AppendMessage(chat, model.RoleUser, "hello"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := chats.AppendMessage(chat, model.RoleAssistant, "hi"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	var reloaded model.Chat
	db.First(&reloaded, chat.ID)
	if reloaded.MessageCount != 2 {
		t.Errorf("expected message count 2, got %d", reloaded.MessageCount)
	}
	if reloaded.LastActivity.Before(before) {
		t.Error("last activity must move forward")
	}
}

func TestChatDefaultsOnCreate(t *testing.T) {
	db := setupTestDB(t, "chat_defaults")
	chats := setupChatService(t, db)

	chat, err := chats.Create(1, "", "", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if chat.Title != "新对话" {
		t.Errorf("expected default title, got %q", chat.Title)
	}
	if chat.AiType != model.AiTypeConversation {
		t.Errorf("expected conversation type, got %q", chat.AiType)
	}
	if chat.IsFavorite || chat.IsProtected {
		t.Error("new chats start unfavorited and unprotected")
	}
}

func TestToggleProtection(t *testing.T) {
	db := setupTestDB(t, "chat_protect")
	chats := setupChatService(t, db)
	chat := createTestChat(t, chats, 1, model.AiTypeConversation)

	updated, err := chats.ToggleProtection(chat.ID, 1)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !updated.IsProtected {
		t.Error("expected protected after first toggle")
	}
	updated, err = chats.ToggleProtection(chat.ID, 1)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if updated.IsProtected {
		t.Error("expected unprotected after second toggle")
	}
}

func TestGetRejectsForeignUser(t *testing.T) {
	db := setupTestDB(t, "chat_foreign")
	chats := setupChatService(t, db)
	chat := createTestChat(t, chats, 1, model.AiTypeConversation)

	if _, err := chats.Get(chat.ID, 2); err != ErrChatNotFound {
		t.Errorf("expected ErrChatNotFound, got %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	db := setupTestDB(t, "chat_delete")
	chats := setupChatService(t, db)
	chat := createTestChat(t, chats, 1, model.AiTypeConversation)

	msg, err := chats.AppendMessage(chat, model.RoleUser, "hello")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	att := &model.MessageAttachment{MessageID: &msg.ID, UserID: 1, FileName: "a.png", FilePath: "/tmp/a.png", FileSize: 10}
	if err := db.Create(att).Error; err != nil {
		t.Fatalf("seed attachment failed: %v", err)
	}

	if err := chats.Delete(chat.ID, 1); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	var nMessages, nAttachments int64
	db.Model(&model.Message{}).Count(&nMessages)
	db.Model(&model.MessageAttachment{}).Count(&nAttachments)
	if nMessages != 0 || nAttachments != 0 {
		t.Errorf("cascade incomplete: %d messages, %d attachments left", nMessages, nAttachments)
	}
}

func TestUnlinkedAttachmentsSkipsAlreadyLinked(t *testing.T) {
	db := setupTestDB(t, "chat_link")
	chats := setupChatService(t, db)
	chat := createTestChat(t, chats, 1, model.AiTypeConversation)
	msg, _ := chats.AppendMessage(chat, model.RoleUser, "first")
	other, _ := chats.AppendMessage(chat, model.RoleUser, "second")

	free := &model.MessageAttachment{UserID: 1, FileName: "free.png", FilePath: "/tmp/free.png"}
	taken := &model.MessageAttachment{UserID: 1, MessageID: &other.ID, FileName: "taken.png", FilePath: "/tmp/taken.png"}
	db.Create(free)
	db.Create(taken)

	claimable, err := chats.UnlinkedAttachments(1, []string{"free.png", "taken.png"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(claimable) != 1 || claimable[0].FileName != "free.png" {
		t.Fatalf("only the unlinked attachment may be claimed, got %+v", claimable)
	}

	linked, err := chats.AttachToMessage(msg.ID, claimable)
	if err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if len(linked) != 1 || linked[0].FileName != "free.png" {
		t.Errorf("unexpected linked set: %+v", linked)
	}

	var reloaded model.MessageAttachment
	db.Where("file_name = ?", "taken.png").First(&reloaded)
	if reloaded.MessageID == nil || *reloaded.MessageID != other.ID {
		t.Error("already linked attachment must keep its message")
	}
}

func TestUnlinkedAttachmentsScopedToUploader(t *testing.T) {
	db := setupTestDB(t, "chat_link_owner")
	chats := setupChatService(t, db)

	upload := &model.MessageAttachment{UserID: 1, FileName: "mine.png", FilePath: "/tmp/mine.png"}
	db.Create(upload)

	claimable, err := chats.UnlinkedAttachments(2, []string{"mine.png"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(claimable) != 0 {
		t.Errorf("another user's upload must not be claimable, got %+v", claimable)
	}

	claimable, err = chats.UnlinkedAttachments(1, []string{"mine.png"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(claimable) != 1 {
		t.Errorf("uploader must be able to claim their own file, got %+v", claimable)
	}
}
