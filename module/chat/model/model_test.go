package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisplayName(t *testing.T) {
	req := require.New(t)
	req.Equal("Team", DisplayName("Team", []string{"a", "b"}))
	req.Equal("a, b", DisplayName("", []string{"a", "b"}))
	req.Equal("a, b, c", DisplayName("", []string{"a", "b", "c", "d"}))
	req.Equal("", DisplayName("", nil))
}

func TestRecency(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sent := created.Add(time.Hour)

	p := ChatPreview{CreatedAt: created}
	require.Equal(t, created, p.Recency())

	p.LastMessage = &Message{CreatedAt: sent}
	require.Equal(t, sent, p.Recency())
}

func TestHasMember(t *testing.T) {
	r := Room{AdminID: "a", Members: []string{"a", "b"}}
	require.True(t, r.HasMember("b"))
	require.False(t, r.HasMember("c"))
}
