package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
)

func TestDispatchCoversEveryType(t *testing.T) {
	opts := testOptions()
	handler := newRecordingHandler()
	opts.Handler = handler
	s, c, _ := startSession(t, opts)
	c.handshake("trent", "")

	routed := map[protocol.MessageType]bool{
		protocol.MessageTypeChannelRemove:          true,
		protocol.MessageTypeChannelState:           true,
		protocol.MessageTypeUserRemove:             true,
		protocol.MessageTypeUserState:              true,
		protocol.MessageTypeBanList:                true,
		protocol.MessageTypeTextMessage:            true,
		protocol.MessageTypeACL:                    true,
		protocol.MessageTypeQueryUsers:             true,
		protocol.MessageTypeContextAction:          true,
		protocol.MessageTypeUserList:               true,
		protocol.MessageTypePermissionQuery:        true,
		protocol.MessageTypeUserStats:              true,
		protocol.MessageTypeRequestBlob:            true,
		protocol.MessageTypePluginDataTransmission: true,
	}

	types := protocol.MessageTypes()
	require.Len(t, types, 27)
	for _, mt := range types {
		require.NoError(t, Dispatch(s, sampleMessage(mt)), mt.String())
		if routed[mt] {
			assert.Equal(t, 1, handler.count(mt), mt.String())
		} else {
			assert.Zero(t, handler.count(mt), mt.String())
		}
	}

	assert.Equal(t, len(routed), handler.total())
	assert.Equal(t, Synced, s.State())
}
