package protocol_test

import (
	"testing"

	"github.com/blomqvist/feyarena/internal/protocol"
	"github.com/matryer/is"
)

func TestHeaderEncoding(t *testing.T) {
	is := is.New(t)

	originalHeader := protocol.Header{
		Type:     protocol.MsgJoin,
		Seq:      42,
		PlayerID: 7,
	}

	encodedHeaderBytes, err := originalHeader.MarshalBinary()
	is.NoErr(err)
	is.Equal(len(encodedHeaderBytes), protocol.HeaderSize)

	decodedHeader := protocol.Header{}
	err = decodedHeader.UnmarshalBinary(encodedHeaderBytes)
	is.NoErr(err)
	is.Equal(originalHeader, decodedHeader)
}

func TestHeaderShortInput(t *testing.T) {
	is := is.New(t)

	header := protocol.Header{}
	err := header.UnmarshalBinary(make([]byte, protocol.HeaderSize-1))
	is.True(err != nil)
}

func TestPlayerDataEncoding(t *testing.T) {
	is := is.New(t)

	original := protocol.PlayerData{
		X:      10.5,
		Y:      2,
		Z:      -10.25,
		Yaw:    1.5707964,
		State:  protocol.PlayerRunning,
		Armed:  1,
		Class:  protocol.ClassArcher,
		Health: 87.5,
	}
	original.SetAnim("run_forward")

	encoded, err := original.MarshalBinary()
	is.NoErr(err)
	is.Equal(len(encoded), protocol.PlayerDataSize)

	decoded := protocol.PlayerData{}
	err = decoded.UnmarshalBinary(encoded)
	is.NoErr(err)
	is.Equal(original, decoded)
	is.Equal(decoded.AnimString(), "run_forward")
}

func TestWorldStateEncoding(t *testing.T) {
	is := is.New(t)

	original := protocol.WorldState{
		Players: []protocol.WorldStatePlayer{
			{PlayerID: 1, Data: protocol.PlayerData{X: 1, Health: 100}},
			{PlayerID: 3, Data: protocol.PlayerData{Z: -4, Health: 35, State: protocol.PlayerHit}},
		},
	}

	encoded, err := original.MarshalBinary()
	is.NoErr(err)
	is.Equal(len(encoded), 4+2*(4+protocol.PlayerDataSize))

	decoded := protocol.WorldState{}
	err = decoded.UnmarshalBinary(encoded)
	is.NoErr(err)
	is.Equal(original, decoded)
}

func TestWorldStateCountOutOfBounds(t *testing.T) {
	is := is.New(t)

	// count claims more records than MaxPlayers
	data := make([]byte, 4)
	data[3] = protocol.MaxPlayers + 1

	decoded := protocol.WorldState{}
	err := decoded.UnmarshalBinary(data)
	is.True(err != nil)
}

func TestWorldStateTruncatedRecords(t *testing.T) {
	is := is.New(t)

	// count of 2 but only one record's worth of bytes
	data := make([]byte, 4+4+protocol.PlayerDataSize)
	data[3] = 2

	decoded := protocol.WorldState{}
	err := decoded.UnmarshalBinary(data)
	is.True(err != nil)
}

func TestEntityStateEncoding(t *testing.T) {
	is := is.New(t)

	original := protocol.EntityState{
		Entities: []protocol.EntityData{
			{
				EntityID: 101,
				Kind:     protocol.EntityKindBobba,
				X:        12,
				Z:        -3,
				Health:   100,
			},
			{
				EntityID: 102,
				Kind:     protocol.EntityKindDragon,
				Y:        22,
				Yaw:      3.14,
				State:    2,
				Health:   500,
			},
		},
	}

	encoded, err := original.MarshalBinary()
	is.NoErr(err)
	is.Equal(len(encoded), 4+2*protocol.EntityDataSize)

	decoded := protocol.EntityState{}
	err = decoded.UnmarshalBinary(encoded)
	is.NoErr(err)
	is.Equal(original, decoded)
}

func TestPacketEncoding(t *testing.T) {
	is := is.New(t)

	t.Run("no body", func(t *testing.T) {
		is := is.New(t)

		original := protocol.Packet{
			Header: protocol.Header{Type: protocol.MsgPing, Seq: 1, PlayerID: 2},
		}

		encoded, err := original.MarshalBinary()
		is.NoErr(err)
		is.Equal(len(encoded), protocol.HeaderSize)

		decoded := protocol.Packet{}
		err = decoded.UnmarshalBinary(encoded)
		is.NoErr(err)
		is.Equal(original, decoded)
	})

	t.Run("with body", func(t *testing.T) {
		is := is.New(t)

		joinAck := &protocol.JoinAck{PlayerID: 1, SpawnX: 20, SpawnY: 1, SpawnZ: -18}
		original := protocol.Packet{
			Header: protocol.Header{Type: protocol.MsgJoinAck, Seq: 9, PlayerID: protocol.ServerID},
			Body:   joinAck,
		}

		encoded, err := original.MarshalBinary()
		is.NoErr(err)
		is.Equal(len(encoded), protocol.HeaderSize+protocol.JoinAckSize)

		decoded := protocol.Packet{}
		err = decoded.UnmarshalBinary(encoded)
		is.NoErr(err)
		is.Equal(decoded.Body, protocol.Body(joinAck))
	})

	t.Run("short payload", func(t *testing.T) {
		is := is.New(t)

		header := protocol.Header{Type: protocol.MsgUpdate, Seq: 1, PlayerID: 1}
		headerBytes, err := header.MarshalBinary()
		is.NoErr(err)

		// declared as Update but carries no player data
		decoded := protocol.Packet{}
		err = decoded.UnmarshalBinary(headerBytes)
		is.True(err != nil)
	})

	t.Run("unknown type", func(t *testing.T) {
		is := is.New(t)

		header := protocol.Header{Type: protocol.MsgMax, Seq: 1, PlayerID: 1}
		headerBytes, err := header.MarshalBinary()
		is.NoErr(err)

		decoded := protocol.Packet{}
		err = decoded.UnmarshalBinary(headerBytes)
		is.True(err != nil)
	})
}

func TestPayloadSize(t *testing.T) {
	is := is.New(t)

	size, ok := protocol.PayloadSize(protocol.MsgUpdate)
	is.True(ok)
	is.Equal(size, protocol.PlayerDataSize)

	size, ok = protocol.PayloadSize(protocol.MsgHeartbeat)
	is.True(ok)
	is.Equal(size, 0)

	_, ok = protocol.PayloadSize(0)
	is.True(!ok)

	_, ok = protocol.PayloadSize(protocol.MsgMax)
	is.True(!ok)
}

func TestGameRestartReason(t *testing.T) {
	is := is.New(t)

	original := protocol.GameRestart{}
	original.SetReason("enemy died")

	encoded, err := original.MarshalBinary()
	is.NoErr(err)
	is.Equal(len(encoded), protocol.ReasonLen)

	decoded := protocol.GameRestart{}
	err = decoded.UnmarshalBinary(encoded)
	is.NoErr(err)
	is.Equal(decoded.ReasonString(), "enemy died")
}
