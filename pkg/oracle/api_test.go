package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestBuildsSystemUserPair(t *testing.T) {
	req := NewRequest("you are a triage assistant", "score this email")

	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "you are a triage assistant", req.Messages[0].Content)
	assert.Equal(t, RoleUser, req.Messages[1].Role)
	assert.Equal(t, "score this email", req.Messages[1].Content)
	assert.Positive(t, req.MaxTokens)
}

func TestSplitMessagesSeparatesRoles(t *testing.T) {
	system, user := splitMessages(NewRequest("sys", "user").Messages)
	assert.Equal(t, "sys", system)
	assert.Equal(t, "user", user)
}
