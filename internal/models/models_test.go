package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusPending))
	assert.True(t, ValidStatus(StatusInProgress))
	assert.True(t, ValidStatus(StatusCompleted))
	assert.False(t, ValidStatus("done"))
	assert.False(t, ValidStatus(""))
}

func TestValidPriority(t *testing.T) {
	assert.True(t, ValidPriority(PriorityLow))
	assert.True(t, ValidPriority(PriorityCritical))
	assert.False(t, ValidPriority("urgent"))
	assert.False(t, ValidPriority(""))
}

func TestTaskFilterClamp(t *testing.T) {
	tests := []struct {
		name            string
		filter          TaskFilter
		expectedPage    int
		expectedPerPage int
		expectedOffset  int
	}{
		{name: "Defaults", filter: TaskFilter{}, expectedPage: 1, expectedPerPage: DefaultPerPage, expectedOffset: 0},
		{name: "PageTooHigh", filter: TaskFilter{Page: 99999, PerPage: 10}, expectedPage: MaxPage, expectedPerPage: 10, expectedOffset: (MaxPage - 1) * 10},
		{name: "PerPageTooLow", filter: TaskFilter{Page: 2, PerPage: 1}, expectedPage: 2, expectedPerPage: MinPerPage, expectedOffset: MinPerPage},
		{name: "PerPageTooHigh", filter: TaskFilter{Page: 1, PerPage: 500}, expectedPage: 1, expectedPerPage: MaxPerPage, expectedOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.filter.Clamp()
			assert.Equal(t, tt.expectedPage, tt.filter.Page)
			assert.Equal(t, tt.expectedPerPage, tt.filter.PerPage)
			assert.Equal(t, tt.expectedOffset, tt.filter.Offset())
		})
	}
}
