// Package gameserver owns the UDP socket and the single-threaded event
// loop. One loop iteration drains at most one datagram, dispatches it,
// then runs whichever scheduled jobs (world broadcast, entity broadcast
// + AI step, timeout sweep) have come due. All world mutation happens on
// this one goroutine; there are no locks anywhere.
package gameserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/blomqvist/feyarena/internal/debug"
	"github.com/blomqvist/feyarena/internal/protocol"
	"github.com/blomqvist/feyarena/internal/world"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
)

const (
	DefaultWorldInterval  = 50 * time.Millisecond
	DefaultEntityInterval = 50 * time.Millisecond

	sweepInterval = time.Second

	// maxPoll caps the read deadline so ctx cancellation is noticed
	// promptly even when no job is due soon.
	maxPoll = 250 * time.Millisecond
)

type GameServer struct {
	conn *net.UDPConn
	buf  []byte

	logger *log.Logger

	world *world.World

	// seq is the server's own outbound sequence counter; sequence
	// numbers are scoped per sender and the server is one sender.
	seq uint32

	worldInterval  time.Duration
	entityInterval time.Duration

	nextWorldAt  time.Time
	nextEntityAt time.Time
	nextSweepAt  time.Time
	lastEntityAt time.Time

	// hostID is the last announced host so changes can be detected.
	hostID uint32
}

func NewGameServer(network, address string, w *world.World, logger *log.Logger) (*GameServer, error) {
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not resolve udp addr: %w", err)
	}

	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen udp: %w", err)
	}

	// if logger is nil (which might be true in tests) => use default,
	// but silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	gs := &GameServer{
		conn: conn,
		buf:  make([]byte, protocol.MaxDatagramSize),

		logger: logger,

		world: w,

		worldInterval:  DefaultWorldInterval,
		entityInterval: DefaultEntityInterval,
	}

	return gs, nil
}

// SetCadence overrides the broadcast intervals; zero keeps the default.
// Must be called before Run.
func (gs *GameServer) SetCadence(worldInterval, entityInterval time.Duration) {
	if worldInterval > 0 {
		gs.worldInterval = worldInterval
	}
	if entityInterval > 0 {
		gs.entityInterval = entityInterval
	}
}

// Addr can be useful to retrieve the server's address when it was
// constructed with ":0".
func (gs *GameServer) Addr() *net.UDPAddr {
	return gs.conn.LocalAddr().(*net.UDPAddr)
}

// Run drives the event loop until ctx is cancelled, then closes the
// socket. The read deadline of each pass is the time until the soonest
// scheduled job, so the loop neither spins nor oversleeps.
func (gs *GameServer) Run(ctx context.Context) error {
	now := time.Now()
	gs.nextWorldAt = now.Add(gs.worldInterval)
	gs.nextEntityAt = now.Add(gs.entityInterval)
	gs.nextSweepAt = now.Add(sweepInterval)
	gs.lastEntityAt = now

	for {
		select {
		case <-ctx.Done():
			return gs.conn.Close()
		default:
		}

		err := gs.conn.SetReadDeadline(gs.nextDeadline(time.Now()))
		debug.Assert(err == nil)

		n, addr, err := gs.conn.ReadFromUDP(gs.buf)
		if err != nil {
			if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
				gs.logger.Error().
					Msgf("could not read from udp: %v", err)
			}
		} else {
			gs.handleDatagram(gs.buf[:n], addr, time.Now())
		}

		gs.runDueJobs(time.Now())
	}
}

func (gs *GameServer) nextDeadline(now time.Time) time.Time {
	deadline := gs.nextWorldAt
	if gs.nextEntityAt.Before(deadline) {
		deadline = gs.nextEntityAt
	}
	if gs.nextSweepAt.Before(deadline) {
		deadline = gs.nextSweepAt
	}
	if limit := now.Add(maxPoll); deadline.After(limit) {
		deadline = limit
	}
	return deadline
}

func (gs *GameServer) runDueJobs(now time.Time) {
	if !now.Before(gs.nextWorldAt) {
		gs.broadcastWorldState()
		gs.nextWorldAt = now.Add(gs.worldInterval)
	}

	if !now.Before(gs.nextEntityAt) {
		dt := now.Sub(gs.lastEntityAt).Seconds()
		gs.lastEntityAt = now
		gs.applyEvents(gs.world.AdvanceEntities(dt, now), now)
		gs.broadcastEntityState()
		gs.nextEntityAt = now.Add(gs.entityInterval)
	}

	if !now.Before(gs.nextSweepAt) {
		if dropped := gs.world.TimeoutSweep(now); len(dropped) > 0 {
			gs.logger.Info().
				Any("players", dropped).
				Msg("timed out inactive players")
			gs.broadcastWorldState()
			gs.announceHost()
		}
		gs.nextSweepAt = now.Add(sweepInterval)
	}
}

// handleDatagram validates the length contract and dispatches. Anything
// malformed or unrecognized is silently dropped; the only responses on
// this path are the ones the protocol defines.
func (gs *GameServer) handleDatagram(data []byte, addr *net.UDPAddr, now time.Time) {
	if len(data) < protocol.HeaderSize {
		gs.logger.Debug().
			Msgf("dropping runt datagram (got %d; want >= %d)", len(data), protocol.HeaderSize)
		return
	}

	header := protocol.Header{}
	err := header.UnmarshalBinary(data)
	debug.Assert(err == nil)

	size, ok := protocol.PayloadSize(header.Type)
	if !ok {
		gs.logger.Debug().
			Msgf("dropping datagram with unknown type %d", header.Type)
		return
	}
	if len(data) < protocol.HeaderSize+size {
		gs.logger.Debug().
			Msgf("dropping short datagram for type %d (got %d; want >= %d)",
				header.Type, len(data)-protocol.HeaderSize, size)
		return
	}
	payload := data[protocol.HeaderSize:]

	// any recognized packet counts as liveness for its address
	gs.world.Touch(addr, now)

	switch header.Type {
	case protocol.MsgJoin:
		gs.handleJoin(payload, addr, now)
	case protocol.MsgUpdate:
		gs.handleUpdate(&header, payload, addr, now)
	case protocol.MsgLeave:
		gs.handleLeave(&header, addr)
	case protocol.MsgSpectate:
		gs.handleSpectate(addr, now)
	case protocol.MsgPing:
		gs.sendPacket(protocol.MsgPong, nil, addr)
	case protocol.MsgHeartbeat, protocol.MsgAck:
		// liveness only, handled by Touch above
	case protocol.MsgEntityDamage:
		gs.handleEntityDamage(data, payload, addr, now)
	case protocol.MsgArrowSpawn, protocol.MsgArrowHit:
		gs.relayToOthers(data, addr)
	default:
		// server-originated types arriving from the wire are noise
		gs.logger.Debug().
			Msgf("ignoring unexpected inbound type %d", header.Type)
	}
}

func (gs *GameServer) handleJoin(payload []byte, addr *net.UDPAddr, now time.Time) {
	req := protocol.JoinRequest{}
	err := req.UnmarshalBinary(payload)
	debug.Assert(err == nil)

	p, err := gs.world.Join(req.NameString(), addr, now)
	if err != nil {
		// no reply; the client infers rejection from the missing ack
		gs.logger.Warn().
			Str("addr", addr.String()).
			Msgf("rejected join: %v", err)
		return
	}

	gs.logger.Info().
		Str("name", p.Name).
		Str("addr", addr.String()).
		Msgf("player %d joined", p.ID)

	gs.sendPacket(protocol.MsgJoinAck, &protocol.JoinAck{
		PlayerID: p.ID,
		SpawnX:   p.Data.X,
		SpawnY:   p.Data.Y,
		SpawnZ:   p.Data.Z,
	}, addr)

	gs.broadcastWorldState()
	gs.announceHost()
}

func (gs *GameServer) handleUpdate(header *protocol.Header, payload []byte, addr *net.UDPAddr, now time.Time) {
	data := protocol.PlayerData{}
	err := data.UnmarshalBinary(payload)
	debug.Assert(err == nil)

	// address binding is the whole authorization story; mismatches are
	// dropped without a response
	gs.world.Update(header.PlayerID, addr, &data, now)
}

func (gs *GameServer) handleLeave(header *protocol.Header, addr *net.UDPAddr) {
	if !gs.world.Leave(header.PlayerID, addr) {
		return
	}

	gs.logger.Info().Msgf("player %d left", header.PlayerID)

	// broadcast right away so remaining clients see the departure
	// without waiting for the next tick
	gs.broadcastWorldState()
	gs.announceHost()
}

func (gs *GameServer) handleSpectate(addr *net.UDPAddr, now time.Time) {
	if err := gs.world.Spectate(addr, now); err != nil {
		gs.logger.Warn().
			Str("addr", addr.String()).
			Msgf("rejected spectate: %v", err)
		return
	}
	gs.sendPacket(protocol.MsgSpectateAck, nil, addr)
}

func (gs *GameServer) handleEntityDamage(datagram, payload []byte, addr *net.UDPAddr, now time.Time) {
	sender := gs.world.FindByAddr(addr)
	if sender == nil {
		return
	}

	dmg := protocol.EntityDamage{}
	err := dmg.UnmarshalBinary(payload)
	debug.Assert(err == nil)

	gs.applyEntityDamage(&dmg, now)

	// relay to the host for host-authoritative resolution paths that
	// bypass the coordinator
	host := gs.world.Host()
	if host != 0 && host != sender.ID {
		if hp := gs.world.FindByID(host); hp != nil {
			gs.sendBytes(datagram, hp.Addr)
		}
	}
}

// applyEntityDamage locates the entity across both pools and applies
// the hit; the entity decides stun/death/restart via events.
func (gs *GameServer) applyEntityDamage(dmg *protocol.EntityDamage, now time.Time) {
	var events []world.Event
	if b := gs.world.FindBobba(dmg.EntityID); b != nil {
		events = b.TakeDamage(dmg.Damage, dmg.AttackerID, now)
	} else if d := gs.world.FindDragon(dmg.EntityID); d != nil {
		events = d.TakeDamage(dmg.Damage, dmg.AttackerID, now)
	} else {
		gs.logger.Debug().
			Msgf("entity damage for unknown entity %d", dmg.EntityID)
		return
	}
	gs.applyEvents(events, now)
}

// applyEvents executes the side effects handed back by transition
// functions. At most one restart is honored per batch; the first reset
// already superseded the rest.
func (gs *GameServer) applyEvents(events []world.Event, now time.Time) {
	restarted := false
	for _, ev := range events {
		switch ev := ev.(type) {
		case world.PlayerDamageEvent:
			gs.sendPlayerDamage(ev)
		case world.RestartEvent:
			if restarted {
				continue
			}
			restarted = true
			gs.handleGameRestart(ev.Reason, ev.RequestedBy, now)
		}
	}
}

// sendPlayerDamage unicasts damage+knockback to the one targeted player.
func (gs *GameServer) sendPlayerDamage(ev world.PlayerDamageEvent) {
	p := gs.world.FindByID(ev.PlayerID)
	if p == nil {
		return
	}
	gs.sendPacket(protocol.MsgPlayerDamage, &protocol.PlayerDamage{
		Damage: ev.Damage,
		KnockX: ev.Knock.X,
		KnockY: ev.Knock.Y,
		KnockZ: ev.Knock.Z,
	}, p.Addr)
}

// handleGameRestart resets the encounter and pushes the new state out
// immediately instead of waiting for the next cadence tick.
func (gs *GameServer) handleGameRestart(reason string, requestedBy uint32, now time.Time) {
	gs.logger.Info().
		Str("reason", reason).
		Msgf("restarting game (requested by %d)", requestedBy)

	gs.world.Restart(now)

	notice := protocol.GameRestart{}
	notice.SetReason(reason)
	for _, p := range gs.world.ActivePlayers() {
		gs.sendPacket(protocol.MsgGameRestart, &notice, p.Addr)
	}

	gs.broadcastWorldState()
	gs.broadcastEntityState()
	gs.nextWorldAt = now.Add(gs.worldInterval)
	gs.nextEntityAt = now.Add(gs.entityInterval)
}

// announceHost broadcasts a HostChange whenever the lowest active id
// changes (join, leave, timeout).
func (gs *GameServer) announceHost() {
	host := gs.world.Host()
	if host == gs.hostID {
		return
	}
	gs.hostID = host

	body := &protocol.HostChange{HostID: host}
	for _, addr := range gs.audience() {
		gs.sendPacket(protocol.MsgHostChange, body, addr)
	}
}

// audience is every address that receives broadcasts: active players
// and spectators.
func (gs *GameServer) audience() []*net.UDPAddr {
	players := gs.world.ActivePlayers()
	spectators := gs.world.Spectators()

	addrs := make([]*net.UDPAddr, 0, len(players)+len(spectators))
	for _, p := range players {
		addrs = append(addrs, p.Addr)
	}
	for _, s := range spectators {
		addrs = append(addrs, s.Addr)
	}
	return addrs
}

// broadcastWorldState serializes every active player into one snapshot
// and unicasts it to the whole audience. Snapshots are idempotent; a
// lost datagram is superseded by the next tick.
func (gs *GameServer) broadcastWorldState() error {
	players := gs.world.ActivePlayers()

	ws := protocol.WorldState{
		Players: make([]protocol.WorldStatePlayer, 0, len(players)),
	}
	for _, p := range players {
		ws.Players = append(ws.Players, protocol.WorldStatePlayer{
			PlayerID: p.ID,
			Data:     p.Data,
		})
	}

	return gs.broadcastPacket(protocol.MsgWorldState, &ws)
}

// broadcastEntityState mirrors broadcastWorldState for the AI pools,
// skipped entirely while no entity is active.
func (gs *GameServer) broadcastEntityState() error {
	if gs.world.ActiveEntityCount() == 0 {
		return nil
	}

	es := protocol.EntityState{}
	for _, b := range gs.world.Bobbas() {
		if b.Active {
			es.Entities = append(es.Entities, b.Snapshot())
		}
	}
	for _, d := range gs.world.Dragons() {
		if d.Active {
			es.Entities = append(es.Entities, d.Snapshot())
		}
	}

	return gs.broadcastPacket(protocol.MsgEntityState, &es)
}

func (gs *GameServer) broadcastPacket(msgType uint8, body protocol.Body) error {
	pkt := protocol.Packet{
		Header: protocol.Header{Type: msgType, Seq: gs.nextSeq(), PlayerID: protocol.ServerID},
		Body:   body,
	}
	bytes, err := pkt.MarshalBinary()
	debug.Assert(err == nil)

	var errs error
	for _, addr := range gs.audience() {
		if err := gs.sendBytes(bytes, addr); err != nil {
			gs.logger.Error().
				Msgf("could not send type %d to %v: %v", msgType, addr, err)
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// relayToOthers forwards the original datagram bytes untouched to every
// active player except the sender.
func (gs *GameServer) relayToOthers(datagram []byte, addr *net.UDPAddr) {
	sender := gs.world.FindByAddr(addr)
	if sender == nil {
		return
	}

	for _, p := range gs.world.ActivePlayers() {
		if p.ID == sender.ID {
			continue
		}
		gs.sendBytes(datagram, p.Addr)
	}
}

func (gs *GameServer) nextSeq() uint32 {
	gs.seq++
	return gs.seq
}

func (gs *GameServer) sendPacket(msgType uint8, body protocol.Body, addr *net.UDPAddr) error {
	pkt := protocol.Packet{
		Header: protocol.Header{Type: msgType, Seq: gs.nextSeq(), PlayerID: protocol.ServerID},
		Body:   body,
	}

	bytes, err := pkt.MarshalBinary()
	debug.Assert(err == nil)

	return gs.sendBytes(bytes, addr)
}

func (gs *GameServer) sendBytes(bytes []byte, addr *net.UDPAddr) error {
	_, err := gs.conn.WriteToUDP(bytes, addr)
	return err
}
