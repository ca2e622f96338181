package world

import (
	"net"
	"time"

	"github.com/blomqvist/feyarena/internal/protocol"
)

// Player is owned exclusively by the registry: created on join, mutated
// by updates from its own address only, soft-deleted on leave or
// timeout. The id is never reused.
type Player struct {
	ID       uint32
	Name     string
	Addr     *net.UDPAddr
	LastSeen time.Time
	Active   bool

	// Data is the full replicated record as last reported by the
	// client (or rewritten by the server on spawn/restart).
	Data protocol.PlayerData
}

// Spectator has no gameplay attributes; it only receives broadcasts.
type Spectator struct {
	Addr     *net.UDPAddr
	LastSeen time.Time
}

func (w *World) activePlayerCount() int {
	n := 0
	for _, p := range w.players {
		if p.Active {
			n++
		}
	}
	return n
}

// Join admits a player. An address that already holds an active player
// reconnects and keeps its identity; a spectating address is demoted
// from the spectator set first. Returns ErrServerFull when every slot
// is taken.
func (w *World) Join(name string, addr *net.UDPAddr, now time.Time) (*Player, error) {
	key := makeAddrKey(addr)

	if id, ok := w.byAddr[key]; ok {
		if p := w.players[id]; p != nil && p.Active {
			p.LastSeen = now
			return p, nil
		}
	}

	delete(w.spectators, key)

	if w.activePlayerCount() >= protocol.MaxPlayers {
		return nil, ErrServerFull
	}

	w.nextPlayerID++
	pos := w.SpawnPosition()

	p := &Player{
		ID:       w.nextPlayerID,
		Name:     name,
		Addr:     addr,
		LastSeen: now,
		Active:   true,
	}
	p.Data.X = pos.X
	p.Data.Y = pos.Y
	p.Data.Z = pos.Z
	p.Data.State = protocol.PlayerIdle
	p.Data.Class = protocol.ClassKnight
	p.Data.Health = FullHealth
	p.Data.SetAnim("idle")

	w.players[p.ID] = p
	w.byAddr[key] = p.ID

	return p, nil
}

// Update overwrites a player's replicated state. The claimed id must
// resolve to an active player whose registered address matches the
// packet's source address exactly; everything else is dropped. That is
// the whole spoofing defence: address binding, not cryptography.
func (w *World) Update(playerID uint32, addr *net.UDPAddr, data *protocol.PlayerData, now time.Time) bool {
	p := w.players[playerID]
	if p == nil || !p.Active {
		return false
	}
	if p.Addr.String() != addr.String() {
		return false
	}

	p.Data = *data
	p.LastSeen = now
	return true
}

// Leave deactivates the slot. Same address binding rule as Update.
func (w *World) Leave(playerID uint32, addr *net.UDPAddr) bool {
	p := w.players[playerID]
	if p == nil || !p.Active {
		return false
	}
	if p.Addr.String() != addr.String() {
		return false
	}

	p.Active = false
	return true
}

// Spectate registers an address as a broadcast-only observer. Returns
// ErrSpectatorsFull when the spectator set is at capacity.
func (w *World) Spectate(addr *net.UDPAddr, now time.Time) error {
	key := makeAddrKey(addr)

	if s, ok := w.spectators[key]; ok {
		s.LastSeen = now
		return nil
	}

	if len(w.spectators) >= protocol.MaxSpectators {
		return ErrSpectatorsFull
	}

	w.spectators[key] = &Spectator{
		Addr:     addr,
		LastSeen: now,
	}
	return nil
}

func (w *World) FindByID(playerID uint32) *Player {
	p := w.players[playerID]
	if p == nil || !p.Active {
		return nil
	}
	return p
}

func (w *World) FindByAddr(addr *net.UDPAddr) *Player {
	id, ok := w.byAddr[makeAddrKey(addr)]
	if !ok {
		return nil
	}
	return w.FindByID(id)
}

// Touch refreshes the last-seen timestamp for whatever the address is
// registered as. Any recognized packet counts as liveness.
func (w *World) Touch(addr *net.UDPAddr, now time.Time) {
	key := makeAddrKey(addr)
	if id, ok := w.byAddr[key]; ok {
		if p := w.players[id]; p != nil && p.Active {
			p.LastSeen = now
		}
	}
	if s, ok := w.spectators[key]; ok {
		s.LastSeen = now
	}
}

// Spectators returns the current spectator set.
func (w *World) Spectators() []*Spectator {
	specs := make([]*Spectator, 0, len(w.spectators))
	for _, s := range w.spectators {
		specs = append(specs, s)
	}
	return specs
}

// TimeoutSweep deactivates players and evicts spectators that have been
// silent past their threshold. Returns the ids of players that were
// dropped so the caller can rebroadcast. Invoked once per second, not
// every tick.
func (w *World) TimeoutSweep(now time.Time) []uint32 {
	var dropped []uint32

	for id, p := range w.players {
		if p.Active && now.Sub(p.LastSeen) > PlayerTimeout {
			p.Active = false
			dropped = append(dropped, id)
		}
	}

	for key, s := range w.spectators {
		if now.Sub(s.LastSeen) > SpectatorTimeout {
			delete(w.spectators, key)
		}
	}

	return dropped
}
