package notify_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/notify"
)

var taskID = uuid.MustParse("6f1c2a8e-4b7d-4e3a-9c1f-2d5e8a7b9c01")

func results() []model.SubtaskResult {
	return []model.SubtaskResult{
		{Agent: model.AgentBusiness, Action: "create_business_plan", Status: model.SubtaskStatusCompleted,
			Output: map[string]any{"pdf_url": "/files/plan.pdf", "title": "Plan"}},
		{Agent: model.AgentSocial, Action: "generate_posts", Status: model.SubtaskStatusFailed,
			Output: map[string]any{"image_url": "https://cdn.example.com/ignored.png"}, Error: "boom"},
		{Agent: model.AgentAvatar, Action: "generate_avatar", Status: model.SubtaskStatusCompleted,
			Output: map[string]any{"image_url": "https://cdn.example.com/a.png", "thumb_url": "javascript:alert(1)", "raw_video_url": 3}},
	}
}

func TestDashboardURL(t *testing.T) {
	c := notify.NewComposer("https://app.example.com/dashboard/", "https://app.example.com")
	assert.Equal(t, "https://app.example.com/dashboard/tasks/"+taskID.String(), c.DashboardURL(taskID))
}

func TestArtifacts(t *testing.T) {
	c := notify.NewComposer("https://app.example.com/dashboard", "https://app.example.com")
	arts := c.Artifacts(results())
	require.Len(t, arts, 2)

	assert.Equal(t, model.AgentBusiness, arts[0].Agent)
	assert.Equal(t, "Business plan (PDF)", arts[0].Label)
	assert.Equal(t, "https://app.example.com/files/plan.pdf", arts[0].URL)

	assert.Equal(t, "Avatar image", arts[1].Label)
	assert.Equal(t, "https://cdn.example.com/a.png", arts[1].URL)
}

func TestArtifactsUnknownKeyLabel(t *testing.T) {
	c := notify.NewComposer("https://d", "https://o")
	arts := c.Artifacts([]model.SubtaskResult{{
		Agent: model.AgentMarketplace, Status: model.SubtaskStatusCompleted,
		Output: map[string]any{"store_front_url": "https://o/s"},
	}})
	require.Len(t, arts, 1)
	assert.Equal(t, "Store front", arts[0].Label)
}

func TestSummary(t *testing.T) {
	r := results()
	assert.Equal(t, "2 of 3 steps completed; 1 failed.", notify.Summary(model.TaskStatusPartial, r))
	assert.Equal(t, "All 3 steps completed.", notify.Summary(model.TaskStatusCompleted, r))
	assert.Equal(t, "All 3 steps failed.", notify.Summary(model.TaskStatusFailed, r))
	assert.Equal(t, "Nothing was run.", notify.Summary(model.TaskStatusFailed, nil))
}

func TestChatMessage(t *testing.T) {
	c := notify.NewComposer("https://app.example.com/dashboard", "https://app.example.com")
	msg := c.ChatMessage(taskID, "launch my bakery", model.TaskStatusPartial, results())

	assert.Contains(t, msg, `Your task "launch my bakery" finished: 2 of 3 steps completed; 1 failed.`)
	assert.Contains(t, msg, "❌ social-media: generate_posts")
	assert.Contains(t, msg, "• Business plan (PDF): https://app.example.com/files/plan.pdf")
	assert.Contains(t, msg, "Details: https://app.example.com/dashboard/tasks/"+taskID.String())
}

func TestSpokenLinks(t *testing.T) {
	c := notify.NewComposer("https://d", "https://o")
	assert.Equal(t, "2 files are ready to download from your dashboard.", c.SpokenLinks(results()))
	assert.Equal(t, "You can review the details on your dashboard.", c.SpokenLinks(nil))
	assert.Equal(t, "One file is ready to download from your dashboard.", c.SpokenLinks(results()[:1]))
}
