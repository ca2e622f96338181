package world_test

import (
	"testing"
	"time"

	"github.com/blomqvist/feyarena/internal/protocol"
	"github.com/blomqvist/feyarena/internal/world"
	"github.com/matryer/is"
)

func playerAt(id uint32, x, y, z float32) *world.Player {
	return &world.Player{
		ID:     id,
		Active: true,
		Data:   protocol.PlayerData{X: x, Y: y, Z: z, Health: 100},
	}
}

// step advances the bobba in 50 ms ticks for the given duration,
// collecting every emitted event.
func step(b *world.Bobba, players []*world.Player, from time.Time, dur time.Duration) ([]world.Event, time.Time) {
	const tick = 50 * time.Millisecond

	var events []world.Event
	now := from
	for elapsed := time.Duration(0); elapsed < dur; elapsed += tick {
		now = now.Add(tick)
		events = append(events, b.Advance(players, tick.Seconds(), now)...)
	}
	return events, now
}

func TestBobbaAcquiresNearestTarget(t *testing.T) {
	is := is.New(t)

	w := newTestWorld()
	b := w.SpawnBobba(world.Vec3{})
	now := time.Unix(1000, 0)

	far := playerAt(1, 100, 0, 100)
	near := playerAt(2, 5, 0, 0)
	nearer := playerAt(3, 3, 0, 0)

	b.Advance([]*world.Player{far, near, nearer}, 0.05, now)

	is.Equal(b.State, world.BobbaChasing)
	is.Equal(b.TargetID, uint32(3))
}

func TestBobbaIgnoresPlayersOutsideDetectRadius(t *testing.T) {
	is := is.New(t)

	w := newTestWorld()
	b := w.SpawnBobba(world.Vec3{})

	b.Advance([]*world.Player{playerAt(1, 30, 0, 0)}, 0.05, time.Unix(1000, 0))

	is.Equal(b.State, world.BobbaRoaming)
	is.Equal(b.TargetID, uint32(0))
}

func TestBobbaChasesAndClosesIn(t *testing.T) {
	is := is.New(t)

	w := newTestWorld()
	b := w.SpawnBobba(world.Vec3{})
	target := playerAt(1, 10, 0, 0)
	players := []*world.Player{target}
	now := time.Unix(1000, 0)

	b.Advance(players, 0.05, now) // acquire
	is.Equal(b.State, world.BobbaChasing)

	_, _ = step(b, players, now, 5*time.Second)
	is.Equal(b.State, world.BobbaAttacking)
}

func TestBobbaLosesDistantTarget(t *testing.T) {
	is := is.New(t)

	w := newTestWorld()
	b := w.SpawnBobba(world.Vec3{})
	target := playerAt(1, 10, 0, 0)
	now := time.Unix(1000, 0)

	b.Advance([]*world.Player{target}, 0.05, now)
	is.Equal(b.State, world.BobbaChasing)

	target.Data.X = 60
	b.Advance([]*world.Player{target}, 0.05, now.Add(50*time.Millisecond))
	is.Equal(b.State, world.BobbaRoaming)
	is.Equal(b.TargetID, uint32(0))
}

func TestBobbaAttackDamageOncePerCycle(t *testing.T) {
	is := is.New(t)

	w := newTestWorld()
	b := w.SpawnBobba(world.Vec3{})
	target := playerAt(1, 1, 0, 0)
	players := []*world.Player{target}
	now := time.Unix(1000, 0)

	b.Advance(players, 0.05, now) // Roaming -> Chasing
	b.Advance(players, 0.05, now) // Chasing -> Attacking (in range)
	is.Equal(b.State, world.BobbaAttacking)

	// one full attack cycle must produce exactly one damage event
	events, _ := step(b, players, now, 1200*time.Millisecond)

	var hits []world.PlayerDamageEvent
	for _, ev := range events {
		if hit, ok := ev.(world.PlayerDamageEvent); ok {
			hits = append(hits, hit)
		}
	}
	is.Equal(len(hits), 1)
	is.Equal(hits[0].PlayerID, uint32(1))
	is.True(hits[0].Damage > 0)
	// knockback pushes away from the bobba, with an upward component
	is.True(hits[0].Knock.X > 0)
	is.True(hits[0].Knock.Y > 0)
}

func TestBobbaAttackMissesWhenTargetEscapes(t *testing.T) {
	is := is.New(t)

	w := newTestWorld()
	b := w.SpawnBobba(world.Vec3{})
	target := playerAt(1, 1, 0, 0)
	players := []*world.Player{target}
	now := time.Unix(1000, 0)

	b.Advance(players, 0.05, now)
	b.Advance(players, 0.05, now)
	is.Equal(b.State, world.BobbaAttacking)

	// target dashes out past the hit radius before the window opens
	target.Data.X = 10

	events, _ := step(b, players, now, 1200*time.Millisecond)
	is.Equal(len(events), 0)
}

func TestBobbaNoDamageBeforeHitWindow(t *testing.T) {
	is := is.New(t)

	w := newTestWorld()
	b := w.SpawnBobba(world.Vec3{})
	target := playerAt(1, 1, 0, 0)
	players := []*world.Player{target}
	now := time.Unix(1000, 0)

	b.Advance(players, 0.05, now)
	b.Advance(players, 0.05, now)
	is.Equal(b.State, world.BobbaAttacking)

	// 20% progress: before the window opens
	events := b.Advance(players, 0.05, now.Add(220*time.Millisecond))
	is.Equal(len(events), 0)

	// 50% progress: inside the window
	events = b.Advance(players, 0.05, now.Add(550*time.Millisecond))
	is.Equal(len(events), 1)
}

func TestBobbaDamageStunsAndRetargets(t *testing.T) {
	is := is.New(t)

	w := newTestWorld()
	b := w.SpawnBobba(world.Vec3{})
	victim := playerAt(1, 5, 0, 0)
	attacker := playerAt(2, 20, 0, 0)
	players := []*world.Player{victim, attacker}
	now := time.Unix(1000, 0)

	b.Advance(players, 0.05, now)
	is.Equal(b.TargetID, uint32(1))

	events := b.TakeDamage(30, attacker.ID, now)
	is.Equal(len(events), 0)
	is.Equal(b.State, world.BobbaStunned)
	is.Equal(b.TargetID, uint32(2))
	is.Equal(b.Health, float32(70))

	// still stunned before expiry
	b.Advance(players, 0.05, now.Add(time.Second))
	is.Equal(b.State, world.BobbaStunned)

	// resumes chasing the attacker after the stun runs out
	b.Advance(players, 0.05, now.Add(2*time.Second))
	is.Equal(b.State, world.BobbaChasing)
	is.Equal(b.TargetID, uint32(2))
}

func TestBobbaDeathRequestsRestart(t *testing.T) {
	is := is.New(t)

	w := newTestWorld()
	b := w.SpawnBobba(world.Vec3{})
	now := time.Unix(1000, 0)

	events := b.TakeDamage(150, 1, now)
	is.Equal(len(events), 1)

	restart, ok := events[0].(world.RestartEvent)
	is.True(ok)
	is.Equal(restart.Reason, "enemy died")
	is.Equal(restart.RequestedBy, uint32(1))
	is.True(!b.Active)

	// a dead bobba neither advances nor takes further damage
	is.Equal(len(b.Advance(nil, 0.05, now)), 0)
	is.Equal(len(b.TakeDamage(50, 1, now)), 0)
}

func TestBobbaIdleWhenAIDisabled(t *testing.T) {
	is := is.New(t)

	w := world.NewWorld(false, nil)
	b := w.SpawnBobba(world.Vec3{})
	is.Equal(b.State, world.BobbaIdle)

	events := w.AdvanceEntities(0.05, time.Unix(1000, 0))
	is.Equal(len(events), 0)
	is.Equal(b.State, world.BobbaIdle)
}
