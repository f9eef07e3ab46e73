package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/ai-platform/aiplatform/internal/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// makeChat inserts a chat with a given age and protection flag.
func makeChat(t *testing.T, svc *RetentionService, userID uint, ageDays int, protected bool) *model.Chat {
	t.Helper()
	chat := &model.Chat{
		UserID:       userID,
		Title:        fmt.Sprintf("chat-%d-days", ageDays),
		AiType:       model.AiTypeConversation,
		LastActivity: time.Now().AddDate(0, 0, -ageDays),
	}
	if protected {
		chat.IsProtected = true
	}
	if err := svc.db.Create(chat).Error; err != nil {
		t.Fatalf("failed to seed chat: %v", err)
	}
	return chat
}

func enableCleanup(t *testing.T, svc *RetentionService, userID uint, retentionDays int) {
	t.Helper()
	enabled := true
	_, err := svc.UpdateSettings(userID, model.SettingsUpdateRequest{
		AutoCleanupEnabled: &enabled,
		RetentionDays:      &retentionDays,
	})
	if err != nil {
		t.Fatalf("failed to enable cleanup: %v", err)
	}
}

func TestSettingsCreatedLazilyWithDefaults(t *testing.T) {
	db := setupTestDB(t, "retention_defaults")
	svc := setupRetentionService(t, db)

	settings, err := svc.Settings(42)
	if err != nil {
		t.Fatalf("settings failed: %v", err)
	}
	if settings.AutoCleanupEnabled {
		t.Error("auto cleanup must default to disabled")
	}
	if settings.RetentionDays != 30 || settings.MaxChats != 100 || settings.ProtectedLimit != 10 {
		t.Errorf("unexpected defaults: %+v", settings)
	}

	// second read returns the same row, not another insert
	var count int64
	db.Model(&model.UserSettings{}).Where("user_id = ?", 42).Count(&count)
	if count != 1 {
		t.Fatalf("expected one settings row, got %d", count)
	}
	if _, err := svc.Settings(42); err != nil {
		t.Fatalf("second settings read failed: %v", err)
	}
	db.Model(&model.UserSettings{}).Where("user_id = ?", 42).Count(&count)
	if count != 1 {
		t.Errorf("settings row duplicated on second read: %d", count)
	}
}

func TestPlanCleanupEmptyWhenDisabled(t *testing.T) {
	db := setupTestDB(t, "retention_disabled")
	svc := setupRetentionService(t, db)
	makeChat(t, svc, 1, 365, false)

	plan, err := svc.PlanCleanup(1)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(plan.ChatIDs) != 0 {
		t.Errorf("disabled cleanup must produce an empty plan, got %v", plan.ChatIDs)
	}
}

func TestPlanCleanupSelectsOnlyExpiredChats(t *testing.T) {
	db := setupTestDB(t, "retention_window")
	svc := setupRetentionService(t, db)
	enableCleanup(t, svc, 1, 30)

	old := makeChat(t, svc, 1, 40, false)
	makeChat(t, svc, 1, 5, false)

	plan, err := svc.PlanCleanup(1)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(plan.ChatIDs) != 1 || plan.ChatIDs[0] != old.ID {
		t.Errorf("expected only the 40-day chat, got %v", plan.ChatIDs)
	}
}

// Protected chats are never selected, for any retention-days value
// including zero, by either planning mode.
func TestProperty_ProtectedChatsNeverSelected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("protected chats survive any plan", prop.ForAll(
		func(retentionDays, ageDays int) bool {
			run++
			db := setupTestDB(t, fmt.Sprintf("retention_protected_%d", run))
			svc := setupRetentionService(t, db)
			enableCleanup(t, svc, 1, retentionDays)

			protected := makeChat(t, svc, 1, ageDays, true)
			makeChat(t, svc, 1, ageDays, false)

			cleanup, err := svc.PlanCleanup(1)
			if err != nil {
				t.Logf("PlanCleanup failed: %v", err)
				return false
			}
			wipe, err := svc.PlanFullWipe(1)
			if err != nil {
				t.Logf("PlanFullWipe failed: %v", err)
				return false
			}
			for _, id := range append(cleanup.ChatIDs, wipe.ChatIDs...) {
				if id == protected.ID {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 365),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// The statistics eligible count reuses the planning predicate, so the two
// never diverge for any settings state.
func TestProperty_StatisticsMatchPlan(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("eligible count equals plan length", prop.ForAll(
		func(enabled bool, retentionDays int, ages []int) bool {
			run++
			db := setupTestDB(t, fmt.Sprintf("retention_stats_%d", run))
			svc := setupRetentionService(t, db)

			days := retentionDays
			_, err := svc.UpdateSettings(1, model.SettingsUpdateRequest{
				AutoCleanupEnabled: &enabled,
				RetentionDays:      &days,
			})
			if err != nil {
				t.Logf("UpdateSettings failed: %v", err)
				return false
			}
			for i, age := range ages {
				makeChat(t, svc, 1, age, i%3 == 0)
			}

			plan, err := svc.PlanCleanup(1)
			if err != nil {
				t.Logf("PlanCleanup failed: %v", err)
				return false
			}
			stats, err := svc.Statistics(1)
			if err != nil {
				t.Logf("Statistics failed: %v", err)
				return false
			}
			return stats.CleanupEligibleCnt == len(plan.ChatIDs)
		},
		gen.Bool(),
		gen.IntRange(0, 120),
		gen.SliceOfN(6, gen.IntRange(0, 400)),
	))

	properties.TestingRun(t)
}

func TestExecuteDeletesTreeAndReportsFreedSpace(t *testing.T) {
	db := setupTestDB(t, "retention_execute")
	svc := setupRetentionService(t, db)
	chats := setupChatService(t, db)
	enableCleanup(t, svc, 1, 30)

	chat := makeChat(t, svc, 1, 60, false)
	msg, err := chats.AppendMessage(chat, model.RoleUser, "old prompt")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	att := &model.MessageAttachment{
		MessageID: &msg.ID,
		UserID:    1,
		FileName:  "old.png",
		FilePath:  "/tmp/old.png",
		MimeType:  "image/png",
		FileSize:  2048,
	}
	if err := db.Create(att).Error; err != nil {
		t.Fatalf("seed attachment failed: %v", err)
	}

	plan, err := svc.PlanCleanup(1)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if plan.EstimatedBytes != 2048 {
		t.Errorf("expected 2048 estimated bytes, got %d", plan.EstimatedBytes)
	}

	report, err := svc.Execute(plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if report.DeletedChatCount != 1 || report.FreedSpaceBytes != 2048 {
		t.Errorf("unexpected report: %+v", report)
	}

	var nChats, nMessages, nAttachments int64
	db.Model(&model.Chat{}).Count(&nChats)
	db.Model(&model.Message{}).Count(&nMessages)
	db.Model(&model.MessageAttachment{}).Count(&nAttachments)
	if nChats != 0 || nMessages != 0 || nAttachments != 0 {
		t.Errorf("cascade incomplete: %d chats, %d messages, %d attachments left",
			nChats, nMessages, nAttachments)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	db := setupTestDB(t, "retention_idempotent")
	svc := setupRetentionService(t, db)
	enableCleanup(t, svc, 1, 30)
	makeChat(t, svc, 1, 60, false)

	plan, err := svc.PlanCleanup(1)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	first, err := svc.Execute(plan)
	if err != nil {
		t.Fatalf("first execute failed: %v", err)
	}
	if first.DeletedChatCount != 1 {
		t.Fatalf("expected 1 deletion, got %d", first.DeletedChatCount)
	}

	second, err := svc.Execute(plan)
	if err != nil {
		t.Fatalf("second execute must not fail: %v", err)
	}
	if second.DeletedChatCount != 0 || second.FreedSpaceBytes != 0 {
		t.Errorf("second execute must skip everything, got %+v", second)
	}
}

func TestFullWipeIgnoresAge(t *testing.T) {
	db := setupTestDB(t, "retention_wipe")
	svc := setupRetentionService(t, db)

	fresh := makeChat(t, svc, 1, 0, false)
	protected := makeChat(t, svc, 1, 0, true)

	plan, err := svc.PlanFullWipe(1)
	if err != nil {
		t.Fatalf("wipe plan failed: %v", err)
	}
	if len(plan.ChatIDs) != 1 || plan.ChatIDs[0] != fresh.ID {
		t.Errorf("expected only the unprotected chat, got %v", plan.ChatIDs)
	}

	if _, err := svc.Execute(plan); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	var remaining []model.Chat
	db.Find(&remaining)
	if len(remaining) != 1 || remaining[0].ID != protected.ID {
		t.Errorf("protected chat must survive the wipe, got %+v", remaining)
	}
}

func TestPlanCleanupZeroRetentionDays(t *testing.T) {
	db := setupTestDB(t, "retention_zero_days")
	svc := setupRetentionService(t, db)
	enableCleanup(t, svc, 1, 0)

	old := makeChat(t, svc, 1, 1, false)
	makeChat(t, svc, 1, 0, true)

	plan, err := svc.PlanCleanup(1)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(plan.ChatIDs) != 1 || plan.ChatIDs[0] != old.ID {
		t.Errorf("zero retention must select unprotected aged chats only, got %v", plan.ChatIDs)
	}
}

func TestSweepAllRunsOnlyForEnabledUsers(t *testing.T) {
	db := setupTestDB(t, "retention_sweep")
	svc := setupRetentionService(t, db)

	enableCleanup(t, svc, 1, 30)
	if _, err := svc.Settings(2); err != nil { // user 2 stays disabled
		t.Fatalf("settings failed: %v", err)
	}

	makeChat(t, svc, 1, 60, false)
	keeper := makeChat(t, svc, 2, 60, false)

	svc.SweepAll()

	var remaining []model.Chat
	db.Find(&remaining)
	if len(remaining) != 1 || remaining[0].ID != keeper.ID {
		t.Errorf("sweep must only touch enabled users, got %+v", remaining)
	}
}
