// Package world owns the canonical game state: the player and spectator
// registries, the AI entity pools and the restart sequencing. Nothing in
// here touches the network; the server feeds packets in and carries
// events out. All methods are called from the single event loop
// goroutine, so there is no locking.
package world

import (
	"errors"
	"math"
	"math/rand"
	"net"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// PlayerTimeout deactivates a player that has not been heard from.
	PlayerTimeout = 10 * time.Second
	// SpectatorTimeout mirrors PlayerTimeout; spectators carry no
	// gameplay state so there is no reason to keep them longer.
	SpectatorTimeout = 10 * time.Second

	FullHealth = 100
)

var (
	ErrServerFull     = errors.New("server full")
	ErrSpectatorsFull = errors.New("spectators full")
)

// spawnAnchors are the three fixed spawn points; actual spawns add a
// random radial offset so players don't stack.
var spawnAnchors = [3]Vec3{
	{X: 18, Y: 1, Z: 0},
	{X: -12, Y: 1, Z: 15},
	{X: 0, Y: 1, Z: -20},
}

const spawnOffsetRadius = 4.0

// Default entity layout used by the server binary; tests place their
// own entities.
var (
	DefaultBobbaSpawns = []Vec3{
		{X: 10, Y: 0, Z: 6},
		{X: -8, Y: 0, Z: -10},
		{X: 4, Y: 0, Z: -14},
	}
	DefaultDragonCenter  = Vec3{}
	DefaultDragonLanding = Vec3{X: 6, Y: 0, Z: 4}
)

type addrKey uint64

func makeAddrKey(addr *net.UDPAddr) addrKey {
	return addrKey(xxhash.Sum64String(addr.String()))
}

// World is the single owned context for all mutable game state. It is
// passed explicitly into every handler; there are no package-level
// registries.
type World struct {
	players    map[uint32]*Player
	byAddr     map[addrKey]uint32
	spectators map[addrKey]*Spectator

	bobbas  []*Bobba
	dragons []*Dragon

	nextPlayerID uint32
	nextEntityID uint32

	aiEnabled bool
	rng       *rand.Rand
}

func NewWorld(aiEnabled bool, rng *rand.Rand) *World {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &World{
		players:    make(map[uint32]*Player),
		byAddr:     make(map[addrKey]uint32),
		spectators: make(map[addrKey]*Spectator),
		aiEnabled:  aiEnabled,
		rng:        rng,
	}
}

// SpawnPosition picks one of the three anchors plus a small random
// radial offset.
func (w *World) SpawnPosition() Vec3 {
	anchor := spawnAnchors[w.rng.Intn(len(spawnAnchors))]
	angle := w.rng.Float64() * 2 * math.Pi
	dist := spawnOffsetRadius * math.Sqrt(w.rng.Float64())
	return Vec3{
		X: anchor.X + float32(math.Cos(angle)*dist),
		Y: anchor.Y,
		Z: anchor.Z + float32(math.Sin(angle)*dist),
	}
}

// Host is the active player with the lowest id, or 0 when nobody is
// connected. Certain damage relays are addressed to it.
func (w *World) Host() uint32 {
	host := uint32(0)
	for id, p := range w.players {
		if !p.Active {
			continue
		}
		if host == 0 || id < host {
			host = id
		}
	}
	return host
}

// ActivePlayers returns active players sorted by id so snapshot packets
// are deterministic.
func (w *World) ActivePlayers() []*Player {
	players := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		if p.Active {
			players = append(players, p)
		}
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].ID < players[j].ID
	})
	return players
}

// SpawnBobba adds a melee enemy to the pool. Entities are spawned once
// at startup and respawned in place on restart, never re-added.
func (w *World) SpawnBobba(pos Vec3) *Bobba {
	w.nextEntityID++
	b := newBobba(w.nextEntityID, pos, w.rng)
	if !w.aiEnabled {
		b.State = BobbaIdle
	}
	w.bobbas = append(w.bobbas, b)
	return b
}

// SpawnDragon adds a patrol/ambush enemy to the pool.
func (w *World) SpawnDragon(center Vec3, landing Vec3) *Dragon {
	w.nextEntityID++
	d := newDragon(w.nextEntityID, center, landing)
	w.dragons = append(w.dragons, d)
	return d
}

func (w *World) Bobbas() []*Bobba {
	return w.bobbas
}

func (w *World) Dragons() []*Dragon {
	return w.dragons
}

// FindBobba resolves an entity id within the bobba pool; entities are
// always re-resolved by id, never cached across ticks.
func (w *World) FindBobba(entityID uint32) *Bobba {
	for _, b := range w.bobbas {
		if b.ID == entityID {
			return b
		}
	}
	return nil
}

func (w *World) FindDragon(entityID uint32) *Dragon {
	for _, d := range w.dragons {
		if d.ID == entityID {
			return d
		}
	}
	return nil
}

// ActiveEntityCount reports how many pool entities are currently live;
// the entity broadcast is skipped when it is zero.
func (w *World) ActiveEntityCount() int {
	n := 0
	for _, b := range w.bobbas {
		if b.Active {
			n++
		}
	}
	for _, d := range w.dragons {
		if d.Active {
			n++
		}
	}
	return n
}

// AdvanceEntities runs one AI step for every active entity and collects
// the side effects. dt is elapsed wall-clock seconds since the previous
// step.
func (w *World) AdvanceEntities(dt float64, now time.Time) []Event {
	if !w.aiEnabled {
		// test mode: bobbas hold Idle, dragons fly a harmless patrol
		// that never lands and never attacks
		for _, d := range w.dragons {
			if d.Active {
				d.PatrolOnly(dt)
			}
		}
		return nil
	}

	players := w.ActivePlayers()

	var events []Event
	for _, b := range w.bobbas {
		events = append(events, b.Advance(players, dt, now)...)
	}
	for _, d := range w.dragons {
		events = append(events, d.Advance(players, dt, now)...)
	}
	return events
}

// Restart resets every previously-spawned bobba to its canonical spawn
// state and every active player to a fresh spawn position at full
// health. Dragons are left alone; they run their own cycle.
func (w *World) Restart(now time.Time) {
	for _, b := range w.bobbas {
		b.Respawn()
		if !w.aiEnabled {
			b.State = BobbaIdle
		}
	}
	for _, p := range w.players {
		if !p.Active {
			continue
		}
		pos := w.SpawnPosition()
		p.Data.X = pos.X
		p.Data.Y = pos.Y
		p.Data.Z = pos.Z
		p.Data.Health = FullHealth
		p.LastSeen = now
	}
}
