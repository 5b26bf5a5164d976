package model_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/conductor/internal/model"
)

func TestRunTaskRequestValidate(t *testing.T) {
	assert.NoError(t, model.RunTaskRequest{Goal: "build a bakery business plan"}.Validate())

	err := model.RunTaskRequest{Goal: "   "}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goal is required")

	err = model.RunTaskRequest{Goal: strings.Repeat("x", model.MaxGoalLen+1)}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum length")
}

func TestDelegateRequestValidate(t *testing.T) {
	ok := model.DelegateRequest{AgentName: model.AgentSocial, Action: "generate_posts"}
	assert.NoError(t, ok.Validate())

	cases := map[string]model.DelegateRequest{
		"missing agent":  {Action: "x"},
		"unknown agent":  {AgentName: "weather-bot", Action: "x"},
		"missing action": {AgentName: model.AgentVoice},
		"long action":    {AgentName: model.AgentVoice, Action: strings.Repeat("a", model.MaxActionLen+1)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, req.Validate())
		})
	}
}

func TestAggregateStatus(t *testing.T) {
	done := model.SubtaskResult{Status: model.SubtaskStatusCompleted}
	fail := model.SubtaskResult{Status: model.SubtaskStatusFailed}

	tests := []struct {
		name    string
		results []model.SubtaskResult
		want    model.TaskStatus
	}{
		{"all completed", []model.SubtaskResult{done, done, done}, model.TaskStatusCompleted},
		{"single completed", []model.SubtaskResult{done}, model.TaskStatusCompleted},
		{"all failed", []model.SubtaskResult{fail, fail}, model.TaskStatusFailed},
		{"mixed", []model.SubtaskResult{done, fail, done}, model.TaskStatusPartial},
		{"failed first", []model.SubtaskResult{fail, done}, model.TaskStatusPartial},
		{"empty", nil, model.TaskStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, model.AggregateStatus(tt.results))
		})
	}
}

func TestAgentNameValid(t *testing.T) {
	for _, a := range model.Agents {
		assert.True(t, a.Valid(), string(a))
	}
	assert.False(t, model.AgentName("unknown").Valid())
}
