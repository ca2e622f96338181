package world

import (
	"math"
	"math/rand"
	"time"

	"github.com/blomqvist/feyarena/internal/protocol"
)

type BobbaState uint32

const (
	// BobbaIdle is inert; only used when AI is globally disabled.
	BobbaIdle BobbaState = iota
	BobbaRoaming
	BobbaChasing
	BobbaAttacking
	BobbaStunned
)

const (
	bobbaDetectRadius = 15.0
	bobbaLoseRadius   = 25.0
	bobbaAttackRange  = 2.2
	// bobbaHitRadius is slightly larger than attack range so a target
	// backpedaling mid-swing can still be clipped.
	bobbaHitRadius = 2.75

	bobbaAttackDuration = 1100 * time.Millisecond
	bobbaHitWindowMin   = 0.3
	bobbaHitWindowMax   = 0.7
	bobbaAttackDamage   = 10.0
	bobbaKnockForce     = 9.0
	bobbaKnockUp        = 0.35

	bobbaStunDuration = 1250 * time.Millisecond

	bobbaRoamSpeed  = 1.6
	bobbaChaseSpeed = 3.4
	bobbaRoamMinSec = 2.5
	bobbaRoamMaxSec = 5.0
)

// Bobba is the melee enemy. Its death is wired to a global encounter
// restart rather than a local respawn.
type Bobba struct {
	ID     uint32
	Pos    Vec3
	Yaw    float32
	Health float32
	Active bool
	State  BobbaState

	// TargetID is 0 when no player is being chased.
	TargetID uint32

	roamDir   Vec3
	roamUntil time.Time

	attackStart time.Time
	// hasHit latches once per attack so one swing can never deal
	// damage twice.
	hasHit bool

	stunUntil time.Time

	spawnPos Vec3
	rng      *rand.Rand
}

func newBobba(id uint32, pos Vec3, rng *rand.Rand) *Bobba {
	return &Bobba{
		ID:       id,
		Pos:      pos,
		Health:   FullHealth,
		Active:   true,
		State:    BobbaRoaming,
		spawnPos: pos,
		rng:      rng,
	}
}

// Respawn re-initializes every field back to the canonical spawn state.
// Ids survive a respawn; the slot remains "this entity".
func (b *Bobba) Respawn() {
	b.Pos = b.spawnPos
	b.Yaw = 0
	b.Health = FullHealth
	b.Active = true
	b.State = BobbaRoaming
	b.TargetID = 0
	b.roamDir = Vec3{}
	b.roamUntil = time.Time{}
	b.attackStart = time.Time{}
	b.hasHit = false
	b.stunUntil = time.Time{}
}

func (b *Bobba) Snapshot() protocol.EntityData {
	return protocol.EntityData{
		EntityID: b.ID,
		Kind:     protocol.EntityKindBobba,
		X:        b.Pos.X,
		Y:        b.Pos.Y,
		Z:        b.Pos.Z,
		Yaw:      b.Yaw,
		State:    uint32(b.State),
		Health:   b.Health,
	}
}

func (b *Bobba) rollRoamHeading(now time.Time) {
	angle := b.rng.Float64() * 2 * math.Pi
	b.roamDir = Vec3{X: float32(math.Cos(angle)), Z: float32(math.Sin(angle))}
	span := bobbaRoamMaxSec - bobbaRoamMinSec
	secs := bobbaRoamMinSec + b.rng.Float64()*span
	b.roamUntil = now.Add(time.Duration(secs * float64(time.Second)))
}

func findPlayer(players []*Player, id uint32) *Player {
	for _, p := range players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func nearestPlayer(players []*Player, pos Vec3, radius float32) *Player {
	var best *Player
	bestDist := radius
	for _, p := range players {
		d := HorizontalDist(pos, Vec3{X: p.Data.X, Y: p.Data.Y, Z: p.Data.Z})
		if d <= bestDist {
			bestDist = d
			best = p
		}
	}
	return best
}

// Advance runs one transition step. It mutates only the bobba itself
// and returns the cross-entity side effects as events.
func (b *Bobba) Advance(players []*Player, dt float64, now time.Time) []Event {
	if !b.Active {
		return nil
	}

	switch b.State {
	case BobbaIdle:
		return nil
	case BobbaRoaming:
		b.advanceRoaming(players, dt, now)
	case BobbaChasing:
		b.advanceChasing(players, dt, now)
	case BobbaAttacking:
		return b.advanceAttacking(players, now)
	case BobbaStunned:
		b.advanceStunned(players, now)
	}
	return nil
}

func (b *Bobba) advanceRoaming(players []*Player, dt float64, now time.Time) {
	if target := nearestPlayer(players, b.Pos, bobbaDetectRadius); target != nil {
		b.TargetID = target.ID
		b.State = BobbaChasing
		return
	}

	if now.After(b.roamUntil) {
		b.rollRoamHeading(now)
	}
	b.Pos = b.Pos.Add(b.roamDir.Scale(float32(bobbaRoamSpeed * dt)))
	if b.roamDir != (Vec3{}) {
		b.Yaw = YawTowards(Vec3{}, b.roamDir)
	}
}

func (b *Bobba) advanceChasing(players []*Player, dt float64, now time.Time) {
	target := findPlayer(players, b.TargetID)
	if target == nil {
		b.loseTarget(now)
		return
	}

	targetPos := Vec3{X: target.Data.X, Y: target.Data.Y, Z: target.Data.Z}
	dist := HorizontalDist(b.Pos, targetPos)

	if dist > bobbaLoseRadius {
		b.loseTarget(now)
		return
	}

	if dist <= bobbaAttackRange {
		b.State = BobbaAttacking
		b.attackStart = now
		b.hasHit = false
		return
	}

	dir := HorizontalDir(b.Pos, targetPos)
	b.Pos = b.Pos.Add(dir.Scale(float32(bobbaChaseSpeed * dt)))
	b.Yaw = YawTowards(b.Pos, targetPos)
}

func (b *Bobba) advanceAttacking(players []*Player, now time.Time) []Event {
	progress := float64(now.Sub(b.attackStart)) / float64(bobbaAttackDuration)

	var events []Event
	if !b.hasHit && progress >= bobbaHitWindowMin && progress <= bobbaHitWindowMax {
		if target := findPlayer(players, b.TargetID); target != nil {
			targetPos := Vec3{X: target.Data.X, Y: target.Data.Y, Z: target.Data.Z}
			if HorizontalDist(b.Pos, targetPos) <= bobbaHitRadius {
				b.hasHit = true
				dir := HorizontalDir(b.Pos, targetPos)
				knock := Vec3{
					X: dir.X * bobbaKnockForce,
					Y: bobbaKnockUp * bobbaKnockForce,
					Z: dir.Z * bobbaKnockForce,
				}
				events = append(events, PlayerDamageEvent{
					PlayerID: target.ID,
					Damage:   bobbaAttackDamage,
					Knock:    knock,
				})
			}
		}
	}

	if progress >= 1 {
		b.State = BobbaChasing
	}
	return events
}

func (b *Bobba) advanceStunned(players []*Player, now time.Time) {
	if now.Before(b.stunUntil) {
		return
	}
	if findPlayer(players, b.TargetID) != nil {
		b.State = BobbaChasing
	} else {
		b.loseTarget(now)
	}
}

func (b *Bobba) loseTarget(now time.Time) {
	b.TargetID = 0
	b.State = BobbaRoaming
	b.rollRoamHeading(now)
}

// TakeDamage applies damage from any source. A surviving bobba is
// stunned and re-targets its attacker; a dead one deactivates and asks
// for a full encounter restart.
func (b *Bobba) TakeDamage(amount float32, attackerID uint32, now time.Time) []Event {
	if !b.Active {
		return nil
	}

	b.Health -= amount
	if b.Health <= 0 {
		b.Active = false
		return []Event{RestartEvent{Reason: "enemy died", RequestedBy: attackerID}}
	}

	if b.State != BobbaIdle {
		b.State = BobbaStunned
		b.stunUntil = now.Add(bobbaStunDuration)
		b.TargetID = attackerID
		b.hasHit = false
	}
	return nil
}
