package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/group"
)

func TestParseJID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"5511987654321", "5511987654321@s.whatsapp.net"},
		{"+55 (11) 98765-4321", "5511987654321@s.whatsapp.net"},
		{"120363000000000001@g.us", "120363000000000001@g.us"},
		{" 5511987654321@s.whatsapp.net ", "5511987654321@s.whatsapp.net"},
	}
	for _, tt := range tests {
		jid, err := ParseJID(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, jid.String())
	}

	for _, bad := range []string{"", "   ", "abc"} {
		_, err := ParseJID(bad)
		assert.ErrorIs(t, err, ErrInvalidJID, bad)
	}
}

func TestParticipantPhone(t *testing.T) {
	pn := types.NewJID("5511987654321", types.DefaultUserServer)
	lid := types.NewJID("123456789", types.HiddenUserServer)

	assert.Equal(t, "5511987654321", participantPhone(types.GroupParticipant{JID: pn}))
	assert.Equal(t, "5511987654321", participantPhone(types.GroupParticipant{JID: lid, PhoneNumber: pn}))
	assert.Empty(t, participantPhone(types.GroupParticipant{JID: lid}))
}

func TestMapGroupError(t *testing.T) {
	assert.ErrorIs(t, mapGroupError(whatsmeow.ErrNotInGroup), group.ErrNotInGroup)
	assert.ErrorIs(t, mapGroupError(whatsmeow.ErrGroupNotFound), group.ErrGroupNotFound)

	other := errors.New("boom")
	assert.Equal(t, other, mapGroupError(other))
}

func TestMessengerWithoutClient(t *testing.T) {
	ctx := context.Background()
	m := NewMessenger(nil, 30, nil)

	_, err := m.ListGroups(ctx)
	assert.ErrorIs(t, err, ErrClientUnavailable)
	_, err = m.ListChatPhones(ctx)
	assert.ErrorIs(t, err, ErrClientUnavailable)
	assert.Empty(t, m.SelfPhone())
}

func TestPrintQR(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintQR(&buf, "2@pairing-code,abc,def"))
	out := buf.String()
	assert.Contains(t, out, "Linked devices")
	assert.Contains(t, out, "█")
}
