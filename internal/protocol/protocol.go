package protocol

import (
	"bytes"
	"encoding"
	"fmt"

	"github.com/blomqvist/feyarena/internal/byteorder"
	"github.com/blomqvist/feyarena/internal/debug"
)

const (
	// HeaderSize is uint8 (1) + uint32 (4) + uint32 (4).
	HeaderSize = 9
	// MaxDatagramSize fits the largest snapshot packet with headroom.
	MaxDatagramSize = 2 << 10

	// ServerID is the header PlayerID that marks a packet as
	// originating from the server rather than from a client.
	ServerID uint32 = 0
)

// capacity bounds baked into the snapshot packet layouts
const (
	MaxPlayers    = 8
	MaxSpectators = 4
	MaxEntities   = 8
)

const (
	NameLen   = 32
	AnimLen   = 32
	ReasonLen = 32
)

const (
	_ uint8 = iota
	MsgJoin
	MsgJoinAck
	MsgLeave
	MsgWorldState
	MsgUpdate
	MsgAck
	MsgPing
	MsgPong
	MsgEntityState
	MsgEntityDamage
	MsgArrowSpawn
	MsgArrowHit
	MsgHostChange
	MsgHeartbeat
	MsgSpectate
	MsgSpectateAck
	MsgPlayerDamage
	MsgGameRestart

	MsgMax
)

// entity kinds carried in EntityData.Kind
const (
	EntityKindBobba  uint32 = 1
	EntityKindDragon uint32 = 2
)

// player movement/combat states carried in PlayerData.State
const (
	PlayerIdle uint32 = iota
	PlayerWalking
	PlayerRunning
	PlayerJumping
	PlayerAttacking
	PlayerBlocking
	PlayerHit
	PlayerDead
)

// player classes carried in PlayerData.Class
const (
	ClassKnight uint16 = iota
	ClassArcher
	ClassMage
)

// payloadSizes maps a message type to the fixed size of its payload.
// Snapshot types map to their 4-byte count prefix; the full size depends
// on the count and is re-checked during unmarshal.
var payloadSizes = [MsgMax]int{
	MsgJoin:         NameLen,
	MsgJoinAck:      16,
	MsgLeave:        0,
	MsgWorldState:   4,
	MsgUpdate:       PlayerDataSize,
	MsgAck:          0,
	MsgPing:         0,
	MsgPong:         0,
	MsgEntityState:  4,
	MsgEntityDamage: 12,
	MsgArrowSpawn:   28,
	MsgArrowHit:     16,
	MsgHostChange:   4,
	MsgHeartbeat:    0,
	MsgSpectate:     0,
	MsgSpectateAck:  0,
	MsgPlayerDamage: 16,
	MsgGameRestart:  ReasonLen,
}

// PayloadSize returns the minimum payload size for the given message
// type and whether the type is known at all. A datagram shorter than
// HeaderSize+PayloadSize for its declared type must be dropped.
func PayloadSize(msgType uint8) (int, bool) {
	if msgType == 0 || msgType >= MsgMax {
		return 0, false
	}
	return payloadSizes[msgType], true
}

type Header struct {
	Type uint8
	// Seq increases monotonically, scoped per sender. Not validated on
	// receive; the transport is unordered and the application tolerates
	// reordering.
	Seq      uint32
	PlayerID uint32
}

var (
	_ encoding.BinaryMarshaler   = (*Header)(nil)
	_ encoding.BinaryUnmarshaler = (*Header)(nil)
)

func (h *Header) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}

	buf.WriteByte(h.Type)
	buf.Write(byteorder.Htonl(h.Seq))
	buf.Write(byteorder.Htonl(h.PlayerID))

	data := buf.Bytes()
	debug.Assert(len(data) == HeaderSize)

	return data, nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("short header (got %d; want >= %d)", len(data), HeaderSize)
	}

	h.Type = data[0]
	h.Seq = byteorder.Ntohl(data[1:5])
	h.PlayerID = byteorder.Ntohl(data[5:9])

	return nil
}

// fixedString copies s into a NUL-padded array of length n.
func fixedString(s string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, s)
	return buf
}

// trimString returns the string up to the first NUL of a fixed field.
func trimString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// PlayerData is the full replicated record for one player: 60 bytes.
type PlayerData struct {
	X, Y, Z float32
	Yaw     float32
	State   uint32
	Armed   uint16
	Class   uint16
	Health  float32
	Anim    [AnimLen]byte
}

const PlayerDataSize = 60

var (
	_ encoding.BinaryMarshaler   = (*PlayerData)(nil)
	_ encoding.BinaryUnmarshaler = (*PlayerData)(nil)
)

func (p *PlayerData) SetAnim(name string) {
	copy(p.Anim[:], fixedString(name, AnimLen))
}

func (p *PlayerData) AnimString() string {
	return trimString(p.Anim[:])
}

func (p *PlayerData) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}

	buf.Write(byteorder.Htonf(p.X))
	buf.Write(byteorder.Htonf(p.Y))
	buf.Write(byteorder.Htonf(p.Z))
	buf.Write(byteorder.Htonf(p.Yaw))
	buf.Write(byteorder.Htonl(p.State))
	buf.Write(byteorder.Htons(p.Armed))
	buf.Write(byteorder.Htons(p.Class))
	buf.Write(byteorder.Htonf(p.Health))
	buf.Write(p.Anim[:])

	data := buf.Bytes()
	debug.Assert(len(data) == PlayerDataSize)

	return data, nil
}

func (p *PlayerData) UnmarshalBinary(data []byte) error {
	if len(data) < PlayerDataSize {
		return fmt.Errorf("short player data (got %d; want >= %d)", len(data), PlayerDataSize)
	}

	p.X = byteorder.Ntohf(data[0:4])
	p.Y = byteorder.Ntohf(data[4:8])
	p.Z = byteorder.Ntohf(data[8:12])
	p.Yaw = byteorder.Ntohf(data[12:16])
	p.State = byteorder.Ntohl(data[16:20])
	p.Armed = byteorder.Ntohs(data[20:22])
	p.Class = byteorder.Ntohs(data[22:24])
	p.Health = byteorder.Ntohf(data[24:28])
	copy(p.Anim[:], data[28:60])

	return nil
}

// JoinRequest carries the requested player name, NUL-padded.
type JoinRequest struct {
	Name [NameLen]byte
}

var (
	_ encoding.BinaryMarshaler   = (*JoinRequest)(nil)
	_ encoding.BinaryUnmarshaler = (*JoinRequest)(nil)
)

func (j *JoinRequest) SetName(name string) {
	copy(j.Name[:], fixedString(name, NameLen))
}

func (j *JoinRequest) NameString() string {
	return trimString(j.Name[:])
}

func (j *JoinRequest) MarshalBinary() ([]byte, error) {
	data := make([]byte, NameLen)
	copy(data, j.Name[:])
	return data, nil
}

func (j *JoinRequest) UnmarshalBinary(data []byte) error {
	if len(data) < NameLen {
		return fmt.Errorf("short join request (got %d; want >= %d)", len(data), NameLen)
	}
	copy(j.Name[:], data[:NameLen])
	return nil
}

// JoinAck tells the joining client its assigned id and spawn position.
type JoinAck struct {
	PlayerID               uint32
	SpawnX, SpawnY, SpawnZ float32
}

const JoinAckSize = 16

var (
	_ encoding.BinaryMarshaler   = (*JoinAck)(nil)
	_ encoding.BinaryUnmarshaler = (*JoinAck)(nil)
)

func (j *JoinAck) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}

	buf.Write(byteorder.Htonl(j.PlayerID))
	buf.Write(byteorder.Htonf(j.SpawnX))
	buf.Write(byteorder.Htonf(j.SpawnY))
	buf.Write(byteorder.Htonf(j.SpawnZ))

	data := buf.Bytes()
	debug.Assert(len(data) == JoinAckSize)

	return data, nil
}

func (j *JoinAck) UnmarshalBinary(data []byte) error {
	if len(data) < JoinAckSize {
		return fmt.Errorf("short join ack (got %d; want >= %d)", len(data), JoinAckSize)
	}

	j.PlayerID = byteorder.Ntohl(data[0:4])
	j.SpawnX = byteorder.Ntohf(data[4:8])
	j.SpawnY = byteorder.Ntohf(data[8:12])
	j.SpawnZ = byteorder.Ntohf(data[12:16])

	return nil
}

// WorldStatePlayer is one record in a world snapshot.
type WorldStatePlayer struct {
	PlayerID uint32
	Data     PlayerData
}

const worldStatePlayerSize = 4 + PlayerDataSize

// WorldState is a full snapshot of every active player.
type WorldState struct {
	Players []WorldStatePlayer
}

var (
	_ encoding.BinaryMarshaler   = (*WorldState)(nil)
	_ encoding.BinaryUnmarshaler = (*WorldState)(nil)
)

func (w *WorldState) MarshalBinary() ([]byte, error) {
	debug.Assert(len(w.Players) <= MaxPlayers)

	buf := bytes.Buffer{}
	buf.Write(byteorder.Htonl(uint32(len(w.Players))))

	for i := range w.Players {
		buf.Write(byteorder.Htonl(w.Players[i].PlayerID))

		playerBytes, err := w.Players[i].Data.MarshalBinary()
		debug.Assert(err == nil)
		buf.Write(playerBytes)
	}

	return buf.Bytes(), nil
}

func (w *WorldState) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("short world state (got %d; want >= 4)", len(data))
	}

	count := byteorder.Ntohl(data[0:4])
	if count > MaxPlayers {
		return fmt.Errorf("world state count out of bounds (got %d; max %d)", count, MaxPlayers)
	}
	if want := 4 + int(count)*worldStatePlayerSize; len(data) < want {
		return fmt.Errorf("short world state (got %d; want >= %d)", len(data), want)
	}

	w.Players = make([]WorldStatePlayer, count)
	for i := range w.Players {
		off := 4 + i*worldStatePlayerSize
		w.Players[i].PlayerID = byteorder.Ntohl(data[off : off+4])

		err := w.Players[i].Data.UnmarshalBinary(data[off+4 : off+worldStatePlayerSize])
		debug.Assert(err == nil)
	}

	return nil
}

// EntityData is one replicated AI entity record: 32 bytes.
type EntityData struct {
	EntityID uint32
	Kind     uint32
	X, Y, Z  float32
	Yaw      float32
	State    uint32
	Health   float32
}

const EntityDataSize = 32

var (
	_ encoding.BinaryMarshaler   = (*EntityData)(nil)
	_ encoding.BinaryUnmarshaler = (*EntityData)(nil)
)

func (e *EntityData) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}

	buf.Write(byteorder.Htonl(e.EntityID))
	buf.Write(byteorder.Htonl(e.Kind))
	buf.Write(byteorder.Htonf(e.X))
	buf.Write(byteorder.Htonf(e.Y))
	buf.Write(byteorder.Htonf(e.Z))
	buf.Write(byteorder.Htonf(e.Yaw))
	buf.Write(byteorder.Htonl(e.State))
	buf.Write(byteorder.Htonf(e.Health))

	data := buf.Bytes()
	debug.Assert(len(data) == EntityDataSize)

	return data, nil
}

func (e *EntityData) UnmarshalBinary(data []byte) error {
	if len(data) < EntityDataSize {
		return fmt.Errorf("short entity data (got %d; want >= %d)", len(data), EntityDataSize)
	}

	e.EntityID = byteorder.Ntohl(data[0:4])
	e.Kind = byteorder.Ntohl(data[4:8])
	e.X = byteorder.Ntohf(data[8:12])
	e.Y = byteorder.Ntohf(data[12:16])
	e.Z = byteorder.Ntohf(data[16:20])
	e.Yaw = byteorder.Ntohf(data[20:24])
	e.State = byteorder.Ntohl(data[24:28])
	e.Health = byteorder.Ntohf(data[28:32])

	return nil
}

// EntityState is a full snapshot of every active AI entity.
type EntityState struct {
	Entities []EntityData
}

var (
	_ encoding.BinaryMarshaler   = (*EntityState)(nil)
	_ encoding.BinaryUnmarshaler = (*EntityState)(nil)
)

func (e *EntityState) MarshalBinary() ([]byte, error) {
	debug.Assert(len(e.Entities) <= MaxEntities)

	buf := bytes.Buffer{}
	buf.Write(byteorder.Htonl(uint32(len(e.Entities))))

	for i := range e.Entities {
		entityBytes, err := e.Entities[i].MarshalBinary()
		debug.Assert(err == nil)
		buf.Write(entityBytes)
	}

	return buf.Bytes(), nil
}

func (e *EntityState) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("short entity state (got %d; want >= 4)", len(data))
	}

	count := byteorder.Ntohl(data[0:4])
	if count > MaxEntities {
		return fmt.Errorf("entity state count out of bounds (got %d; max %d)", count, MaxEntities)
	}
	if want := 4 + int(count)*EntityDataSize; len(data) < want {
		return fmt.Errorf("short entity state (got %d; want >= %d)", len(data), want)
	}

	e.Entities = make([]EntityData, count)
	for i := range e.Entities {
		off := 4 + i*EntityDataSize
		err := e.Entities[i].UnmarshalBinary(data[off : off+EntityDataSize])
		debug.Assert(err == nil)
	}

	return nil
}

// EntityDamage reports damage dealt by a player to an AI entity.
type EntityDamage struct {
	EntityID   uint32
	Damage     float32
	AttackerID uint32
}

const EntityDamageSize = 12

var (
	_ encoding.BinaryMarshaler   = (*EntityDamage)(nil)
	_ encoding.BinaryUnmarshaler = (*EntityDamage)(nil)
)

func (e *EntityDamage) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}

	buf.Write(byteorder.Htonl(e.EntityID))
	buf.Write(byteorder.Htonf(e.Damage))
	buf.Write(byteorder.Htonl(e.AttackerID))

	data := buf.Bytes()
	debug.Assert(len(data) == EntityDamageSize)

	return data, nil
}

func (e *EntityDamage) UnmarshalBinary(data []byte) error {
	if len(data) < EntityDamageSize {
		return fmt.Errorf("short entity damage (got %d; want >= %d)", len(data), EntityDamageSize)
	}

	e.EntityID = byteorder.Ntohl(data[0:4])
	e.Damage = byteorder.Ntohf(data[4:8])
	e.AttackerID = byteorder.Ntohl(data[8:12])

	return nil
}

// ArrowSpawn announces a fired arrow. The server relays it verbatim to
// every other active player and never inspects the fields.
type ArrowSpawn struct {
	X, Y, Z          float32
	DirX, DirY, DirZ float32
	Speed            float32
}

const ArrowSpawnSize = 28

var (
	_ encoding.BinaryMarshaler   = (*ArrowSpawn)(nil)
	_ encoding.BinaryUnmarshaler = (*ArrowSpawn)(nil)
)

func (a *ArrowSpawn) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}

	buf.Write(byteorder.Htonf(a.X))
	buf.Write(byteorder.Htonf(a.Y))
	buf.Write(byteorder.Htonf(a.Z))
	buf.Write(byteorder.Htonf(a.DirX))
	buf.Write(byteorder.Htonf(a.DirY))
	buf.Write(byteorder.Htonf(a.DirZ))
	buf.Write(byteorder.Htonf(a.Speed))

	data := buf.Bytes()
	debug.Assert(len(data) == ArrowSpawnSize)

	return data, nil
}

func (a *ArrowSpawn) UnmarshalBinary(data []byte) error {
	if len(data) < ArrowSpawnSize {
		return fmt.Errorf("short arrow spawn (got %d; want >= %d)", len(data), ArrowSpawnSize)
	}

	a.X = byteorder.Ntohf(data[0:4])
	a.Y = byteorder.Ntohf(data[4:8])
	a.Z = byteorder.Ntohf(data[8:12])
	a.DirX = byteorder.Ntohf(data[12:16])
	a.DirY = byteorder.Ntohf(data[16:20])
	a.DirZ = byteorder.Ntohf(data[20:24])
	a.Speed = byteorder.Ntohf(data[24:28])

	return nil
}

// ArrowHit announces an arrow impact. Relayed verbatim like ArrowSpawn.
type ArrowHit struct {
	TargetID uint32
	X, Y, Z  float32
}

const ArrowHitSize = 16

var (
	_ encoding.BinaryMarshaler   = (*ArrowHit)(nil)
	_ encoding.BinaryUnmarshaler = (*ArrowHit)(nil)
)

func (a *ArrowHit) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}

	buf.Write(byteorder.Htonl(a.TargetID))
	buf.Write(byteorder.Htonf(a.X))
	buf.Write(byteorder.Htonf(a.Y))
	buf.Write(byteorder.Htonf(a.Z))

	data := buf.Bytes()
	debug.Assert(len(data) == ArrowHitSize)

	return data, nil
}

func (a *ArrowHit) UnmarshalBinary(data []byte) error {
	if len(data) < ArrowHitSize {
		return fmt.Errorf("short arrow hit (got %d; want >= %d)", len(data), ArrowHitSize)
	}

	a.TargetID = byteorder.Ntohl(data[0:4])
	a.X = byteorder.Ntohf(data[4:8])
	a.Y = byteorder.Ntohf(data[8:12])
	a.Z = byteorder.Ntohf(data[12:16])

	return nil
}

// PlayerDamage is unicast to the one player being hit, carrying the
// damage amount and a knockback impulse.
type PlayerDamage struct {
	Damage                 float32
	KnockX, KnockY, KnockZ float32
}

const PlayerDamageSize = 16

var (
	_ encoding.BinaryMarshaler   = (*PlayerDamage)(nil)
	_ encoding.BinaryUnmarshaler = (*PlayerDamage)(nil)
)

func (p *PlayerDamage) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}

	buf.Write(byteorder.Htonf(p.Damage))
	buf.Write(byteorder.Htonf(p.KnockX))
	buf.Write(byteorder.Htonf(p.KnockY))
	buf.Write(byteorder.Htonf(p.KnockZ))

	data := buf.Bytes()
	debug.Assert(len(data) == PlayerDamageSize)

	return data, nil
}

func (p *PlayerDamage) UnmarshalBinary(data []byte) error {
	if len(data) < PlayerDamageSize {
		return fmt.Errorf("short player damage (got %d; want >= %d)", len(data), PlayerDamageSize)
	}

	p.Damage = byteorder.Ntohf(data[0:4])
	p.KnockX = byteorder.Ntohf(data[4:8])
	p.KnockY = byteorder.Ntohf(data[8:12])
	p.KnockZ = byteorder.Ntohf(data[12:16])

	return nil
}

// GameRestart announces a full encounter reset with a short reason tag.
type GameRestart struct {
	Reason [ReasonLen]byte
}

var (
	_ encoding.BinaryMarshaler   = (*GameRestart)(nil)
	_ encoding.BinaryUnmarshaler = (*GameRestart)(nil)
)

func (g *GameRestart) SetReason(reason string) {
	copy(g.Reason[:], fixedString(reason, ReasonLen))
}

func (g *GameRestart) ReasonString() string {
	return trimString(g.Reason[:])
}

func (g *GameRestart) MarshalBinary() ([]byte, error) {
	data := make([]byte, ReasonLen)
	copy(data, g.Reason[:])
	return data, nil
}

func (g *GameRestart) UnmarshalBinary(data []byte) error {
	if len(data) < ReasonLen {
		return fmt.Errorf("short game restart (got %d; want >= %d)", len(data), ReasonLen)
	}
	copy(g.Reason[:], data[:ReasonLen])
	return nil
}

// HostChange announces the current host (active player with the lowest
// id), the authoritative target for certain damage relays.
type HostChange struct {
	HostID uint32
}

const HostChangeSize = 4

var (
	_ encoding.BinaryMarshaler   = (*HostChange)(nil)
	_ encoding.BinaryUnmarshaler = (*HostChange)(nil)
)

func (h *HostChange) MarshalBinary() ([]byte, error) {
	return byteorder.Htonl(h.HostID), nil
}

func (h *HostChange) UnmarshalBinary(data []byte) error {
	if len(data) < HostChangeSize {
		return fmt.Errorf("short host change (got %d; want >= %d)", len(data), HostChangeSize)
	}
	h.HostID = byteorder.Ntohl(data[0:4])
	return nil
}

// Body is a message payload that knows its own byte layout.
type Body interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// NewBody allocates the payload struct for a message type, or nil for
// header-only and unknown types.
func NewBody(msgType uint8) Body {
	switch msgType {
	case MsgJoin:
		return &JoinRequest{}
	case MsgJoinAck:
		return &JoinAck{}
	case MsgWorldState:
		return &WorldState{}
	case MsgUpdate:
		return &PlayerData{}
	case MsgEntityState:
		return &EntityState{}
	case MsgEntityDamage:
		return &EntityDamage{}
	case MsgArrowSpawn:
		return &ArrowSpawn{}
	case MsgArrowHit:
		return &ArrowHit{}
	case MsgHostChange:
		return &HostChange{}
	case MsgPlayerDamage:
		return &PlayerDamage{}
	case MsgGameRestart:
		return &GameRestart{}
	default:
		return nil
	}
}

// Packet is a header plus an optional payload.
type Packet struct {
	Header Header
	Body   Body
}

var (
	_ encoding.BinaryMarshaler   = (*Packet)(nil)
	_ encoding.BinaryUnmarshaler = (*Packet)(nil)
)

func (p *Packet) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}

	headerBytes, err := p.Header.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not marshal header: %w", err)
	}
	buf.Write(headerBytes)

	if p.Body != nil {
		bodyBytes, err := p.Body.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("could not marshal body: %w", err)
		}
		buf.Write(bodyBytes)
	}

	data := buf.Bytes()
	debug.Assert(len(data) >= HeaderSize)

	return data, nil
}

func (p *Packet) UnmarshalBinary(data []byte) error {
	if err := p.Header.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("could not unmarshal header: %w", err)
	}

	size, ok := PayloadSize(p.Header.Type)
	if !ok {
		return fmt.Errorf("unknown message type %d", p.Header.Type)
	}
	if len(data) < HeaderSize+size {
		return fmt.Errorf(
			"short payload for type %d (got %d; want >= %d)",
			p.Header.Type, len(data)-HeaderSize, size,
		)
	}

	p.Body = NewBody(p.Header.Type)
	if p.Body != nil {
		if err := p.Body.UnmarshalBinary(data[HeaderSize:]); err != nil {
			return fmt.Errorf("could not unmarshal body: %w", err)
		}
	}

	return nil
}
