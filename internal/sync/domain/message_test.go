package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessagePartnerOf(t *testing.T) {
	m := DirectMessage{
		SenderID:    "alice",
		RecipientID: "bob",
	}

	assert.Equal(t, "bob", m.PartnerOf("alice"))
	assert.Equal(t, "alice", m.PartnerOf("bob"))

	assert.True(t, m.InboundFor("bob"), "recipient should be inbound")
	assert.False(t, m.InboundFor("alice"), "sender should not be inbound")
}

func TestTempID(t *testing.T) {
	id := NewTempID()
	assert.True(t, strings.HasPrefix(id, TempIDPrefix))
	assert.NotEqual(t, id, NewTempID(), "temp ids should be unique")

	m := DirectMessage{ID: id}
	assert.True(t, m.IsTemp())

	m.ID = "a3e1f0d2"
	assert.False(t, m.IsTemp())
}
