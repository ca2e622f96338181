// Package gameclient is a protocol-speaking client used by the
// end-to-end tests and the smoke-test bot. It is deliberately thin: the
// real game client lives outside this repository, this one only drives
// traffic into the server and records what comes back.
package gameclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/blomqvist/feyarena/internal/debug"
	"github.com/blomqvist/feyarena/internal/protocol"
	"github.com/phuslu/log"
)

type GameClient struct {
	conn    *net.UDPConn
	readBuf []byte

	logger *log.Logger

	mu       sync.Mutex
	seq      uint32
	playerID uint32

	worldState  protocol.WorldState
	entityState protocol.EntityState
	restarts    []string
	damages     []protocol.PlayerDamage
	hostID      uint32
}

func NewGameClient(network, address string, logger *log.Logger) (*GameClient, error) {
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not resolve udp addr: %w", err)
	}

	conn, err := net.DialUDP(network, nil, addr)
	if err != nil {
		return nil, fmt.Errorf("could not dial udp: %w", err)
	}

	// if logger is nil (which might be true in tests) => use default,
	// but silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	gc := &GameClient{
		conn:    conn,
		readBuf: make([]byte, protocol.MaxDatagramSize),
		logger:  logger,
	}

	return gc, nil
}

func (gc *GameClient) Close() error {
	return gc.conn.Close()
}

func (gc *GameClient) PlayerID() uint32 {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.playerID
}

func (gc *GameClient) send(msgType uint8, body protocol.Body) error {
	gc.mu.Lock()
	gc.seq++
	pkt := protocol.Packet{
		Header: protocol.Header{Type: msgType, Seq: gc.seq, PlayerID: gc.playerID},
		Body:   body,
	}
	gc.mu.Unlock()

	bytes, err := pkt.MarshalBinary()
	debug.Assert(err == nil)

	_, err = gc.conn.Write(bytes)
	return err
}

// recvType reads until a packet of the wanted type arrives or the
// deadline passes. Only for the synchronous handshakes (join,
// spectate); must not run concurrently with Run.
func (gc *GameClient) recvType(msgType uint8, timeout time.Duration) (*protocol.Packet, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := gc.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		n, err := gc.conn.Read(gc.readBuf)
		if err != nil {
			return nil, fmt.Errorf("waiting for type %d: %w", msgType, err)
		}

		pkt := protocol.Packet{}
		if err := pkt.UnmarshalBinary(gc.readBuf[:n]); err != nil {
			continue
		}
		if pkt.Header.Type == msgType {
			return &pkt, nil
		}
	}
}

// Join performs the join handshake and remembers the assigned id.
func (gc *GameClient) Join(name string, timeout time.Duration) (*protocol.JoinAck, error) {
	req := protocol.JoinRequest{}
	req.SetName(name)
	if err := gc.send(protocol.MsgJoin, &req); err != nil {
		return nil, err
	}

	pkt, err := gc.recvType(protocol.MsgJoinAck, timeout)
	if err != nil {
		return nil, err
	}

	ack := pkt.Body.(*protocol.JoinAck)

	gc.mu.Lock()
	gc.playerID = ack.PlayerID
	gc.mu.Unlock()

	return ack, nil
}

// Spectate registers this client as a broadcast-only observer.
func (gc *GameClient) Spectate(timeout time.Duration) error {
	if err := gc.send(protocol.MsgSpectate, nil); err != nil {
		return err
	}
	_, err := gc.recvType(protocol.MsgSpectateAck, timeout)
	return err
}

func (gc *GameClient) SendUpdate(data *protocol.PlayerData) error {
	return gc.send(protocol.MsgUpdate, data)
}

func (gc *GameClient) SendHeartbeat() error {
	return gc.send(protocol.MsgHeartbeat, nil)
}

func (gc *GameClient) SendLeave() error {
	return gc.send(protocol.MsgLeave, nil)
}

func (gc *GameClient) SendEntityDamage(entityID uint32, damage float32, attackerID uint32) error {
	return gc.send(protocol.MsgEntityDamage, &protocol.EntityDamage{
		EntityID:   entityID,
		Damage:     damage,
		AttackerID: attackerID,
	})
}

func (gc *GameClient) SendArrowSpawn(arrow *protocol.ArrowSpawn) error {
	return gc.send(protocol.MsgArrowSpawn, arrow)
}

// Run receives broadcasts until ctx is cancelled, recording the latest
// snapshots and every restart/damage notice.
func (gc *GameClient) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := gc.conn.SetReadDeadline(time.Now().Add(time.Second))
		debug.Assert(err == nil)

		n, err := gc.conn.Read(gc.readBuf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			gc.logger.Error().
				Msgf("could not read: %v", err)
			continue
		}

		pkt := protocol.Packet{}
		if err := pkt.UnmarshalBinary(gc.readBuf[:n]); err != nil {
			gc.logger.Debug().
				Msgf("could not unmarshal packet: %v", err)
			continue
		}

		gc.mu.Lock()
		switch pkt.Header.Type {
		case protocol.MsgWorldState:
			gc.worldState = *pkt.Body.(*protocol.WorldState)
		case protocol.MsgEntityState:
			gc.entityState = *pkt.Body.(*protocol.EntityState)
		case protocol.MsgGameRestart:
			gc.restarts = append(gc.restarts, pkt.Body.(*protocol.GameRestart).ReasonString())
		case protocol.MsgPlayerDamage:
			gc.damages = append(gc.damages, *pkt.Body.(*protocol.PlayerDamage))
		case protocol.MsgHostChange:
			gc.hostID = pkt.Body.(*protocol.HostChange).HostID
		}
		gc.mu.Unlock()
	}
}

// WorldState returns the most recent world snapshot.
func (gc *GameClient) WorldState() protocol.WorldState {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.worldState
}

// EntityState returns the most recent entity snapshot.
func (gc *GameClient) EntityState() protocol.EntityState {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.entityState
}

// Restarts returns every restart reason seen so far.
func (gc *GameClient) Restarts() []string {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return append([]string(nil), gc.restarts...)
}

// Damages returns every damage notice received so far.
func (gc *GameClient) Damages() []protocol.PlayerDamage {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return append([]protocol.PlayerDamage(nil), gc.damages...)
}

// HostID returns the last announced host.
func (gc *GameClient) HostID() uint32 {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.hostID
}
