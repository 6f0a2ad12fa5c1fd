package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestExtract_CallJohnTomorrow(t *testing.T) {
	got := Extract("I need to call John tomorrow. #urgent")

	require.Len(t, got, 1)
	assert.Equal(t, Draft{Content: "call John tomorrow", Priority: PriorityMedium, DueDate: strPtr("tomorrow")}, got[0])
}

func TestExtract_Priorities(t *testing.T) {
	got := Extract("This is urgent: I must finish the report asap. Maybe I will clean the garage sometime!")

	require.Len(t, got, 2)
	assert.Equal(t, "finish the report asap", got[0].Content)
	assert.Equal(t, PriorityHigh, got[0].Priority)
	assert.Equal(t, "clean the garage sometime", got[1].Content)
	assert.Equal(t, PriorityLow, got[1].Priority)
}

func TestExtract_NoDeduplicationAcrossTemplates(t *testing.T) {
	got := Extract("TODO: I need to buy milk.")

	require.Len(t, got, 2)
	assert.Equal(t, "buy milk", got[0].Content)
	assert.Equal(t, "I need to buy milk", got[1].Content)
}

func TestExtract_TemplatesAndDueDates(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []Draft
	}{
		{
			name:    "by month day",
			content: "We should ship it by March 5.",
			want:    []Draft{{Content: "ship it by March 5", Priority: PriorityMedium, DueDate: strPtr("by March 5")}},
		},
		{
			name:    "next week",
			content: "Going to review the plan next week!",
			want:    []Draft{{Content: "review the plan next week", Priority: PriorityMedium, DueDate: strPtr("next week")}},
		},
		{
			name:    "action item label",
			content: "Action item: email the team today.",
			want:    []Draft{{Content: "email the team today", Priority: PriorityMedium, DueDate: strPtr("today")}},
		},
		{
			name:    "unterminated clause",
			content: "I will do it",
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.content))
		})
	}
}

func TestPriority_FirstMatchWins(t *testing.T) {
	assert.Equal(t, PriorityHigh, Priority("urgent but we can do it later"))
	assert.Equal(t, PriorityLow, Priority("low priority cleanup"))
	assert.Equal(t, PriorityMedium, Priority("plain clause"))
	assert.Nil(t, DueDate("no date here"))
}

func TestExtractFromAgentText_Templates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Draft
	}{
		{
			name: "labeled",
			text: "Action: Book flights, Priority: High, Due Date: next Friday",
			want: Draft{Content: "Book flights", Priority: "high", DueDate: strPtr("next Friday")},
		},
		{
			name: "bullet with priority and due",
			text: "- Call mom: Priority: low, Due: Sunday",
			want: Draft{Content: "Call mom", Priority: "low", DueDate: strPtr("Sunday")},
		},
		{
			name: "bullet with inline priority",
			text: "- Renew passport: high priority, due June 1",
			want: Draft{Content: "Renew passport", Priority: "high", DueDate: strPtr("June 1")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFromAgentText(tt.text)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestExtractFromAgentText_UnknownPriorityIsMedium(t *testing.T) {
	got := ExtractFromAgentText("Action: Book flights, Priority: Critical, Due Date: none")

	require.Len(t, got, 1)
	assert.Equal(t, PriorityMedium, got[0].Priority)
	assert.Nil(t, got[0].DueDate)
}

func TestExtractFromAgentText_ListFallback(t *testing.T) {
	text := "Here is what to do:\n1. Renew passport high priority by June 12\n* water plants tomorrow\n- low priority tidy desk\nnot a list item"

	got := ExtractFromAgentText(text)

	require.Len(t, got, 3)
	assert.Equal(t, Draft{Content: "Renew passport", Priority: PriorityHigh, DueDate: strPtr("by June 12")}, got[0])
	assert.Equal(t, Draft{Content: "water plants", Priority: PriorityMedium, DueDate: strPtr("tomorrow")}, got[1])
	assert.Equal(t, Draft{Content: "tidy desk", Priority: PriorityLow}, got[2])
}
