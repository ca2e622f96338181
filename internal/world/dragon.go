package world

import (
	"math"
	"time"

	"github.com/blomqvist/feyarena/internal/protocol"
)

type DragonState uint32

const (
	DragonPatrol DragonState = iota
	DragonFlyingToLand
	DragonLanding
	DragonWait
	DragonAttacking
	DragonTakingOff
)

const (
	dragonHealth = 500.0

	dragonPatrolRadiusX  = 40.0
	dragonPatrolRadiusZ  = 24.0
	dragonPatrolAltitude = 22.0
	dragonRippleAmp      = 1.8
	dragonAngularSpeed   = 0.4 // rad/s
	dragonLapThreshold   = 3

	dragonApproachHeight = 10.0
	dragonApproachSpeed  = 11.0
	dragonApproachSnap   = 0.5

	// landing speed is proportional to remaining distance, clamped so
	// the final approach never stalls
	dragonLandingGain   = 1.2
	dragonLandingMinSpd = 1.6
	dragonLandingSnap   = 0.3

	dragonWaitDuration   = 6 * time.Second
	dragonAttackRange    = 10.0
	dragonAttackDuration = 2 * time.Second
	dragonAttackDamage   = 25.0
	dragonKnockForce     = 12.0
	dragonKnockUp        = 0.4

	dragonTakeoffSpeed  = 6.5
	dragonTakeoffHeight = 0.8 // fraction of patrol altitude
)

// Dragon cycles Patrol → FlyingToLand → Landing → Wait → (Attacking) →
// TakingOff → Patrol. Unlike Bobba, its death only deactivates the
// entity; the encounter keeps going.
type Dragon struct {
	ID     uint32
	Pos    Vec3
	Yaw    float32
	Health float32
	Active bool
	State  DragonState

	TargetID uint32

	center  Vec3
	landing Vec3

	patrolAngle float64
	laps        int

	waitUntil   time.Time
	attackStart time.Time
	hasHit      bool
}

func newDragon(id uint32, center Vec3, landing Vec3) *Dragon {
	d := &Dragon{
		ID:      id,
		Health:  dragonHealth,
		Active:  true,
		State:   DragonPatrol,
		center:  center,
		landing: landing,
	}
	d.Pos = d.patrolPoint(0)
	return d
}

func (d *Dragon) Snapshot() protocol.EntityData {
	return protocol.EntityData{
		EntityID: d.ID,
		Kind:     protocol.EntityKindDragon,
		X:        d.Pos.X,
		Y:        d.Pos.Y,
		Z:        d.Pos.Z,
		Yaw:      d.Yaw,
		State:    uint32(d.State),
		Health:   d.Health,
	}
}

// patrolPoint is the flattened oval path with a gentle altitude ripple.
func (d *Dragon) patrolPoint(angle float64) Vec3 {
	return Vec3{
		X: d.center.X + float32(dragonPatrolRadiusX*math.Cos(angle)),
		Y: d.center.Y + dragonPatrolAltitude + float32(dragonRippleAmp*math.Sin(angle*2)),
		Z: d.center.Z + float32(dragonPatrolRadiusZ*math.Sin(angle)),
	}
}

// Laps reports full revolutions flown since the last patrol reset.
func (d *Dragon) Laps() int {
	return d.laps
}

// Advance runs one transition step; aiEnabled=false worlds never call
// this with landing enabled, see World.AdvanceEntities.
func (d *Dragon) Advance(players []*Player, dt float64, now time.Time) []Event {
	if !d.Active {
		return nil
	}

	switch d.State {
	case DragonPatrol:
		d.advancePatrol(dt)
	case DragonFlyingToLand:
		d.advanceFlyingToLand(dt)
	case DragonLanding:
		d.advanceLanding(dt, now)
	case DragonWait:
		d.advanceWait(players, now)
	case DragonAttacking:
		return d.advanceAttacking(players, now)
	case DragonTakingOff:
		d.advanceTakingOff(dt)
	}
	return nil
}

// PatrolOnly flies the oval without counting laps, so the dragon never
// leaves Patrol. Used when AI is globally disabled.
func (d *Dragon) PatrolOnly(dt float64) {
	prev := d.patrolAngle
	d.patrolAngle += dragonAngularSpeed * dt
	if d.patrolAngle >= 2*math.Pi {
		d.patrolAngle -= 2 * math.Pi
	}

	next := d.patrolPoint(d.patrolAngle)
	d.Yaw = YawTowards(d.patrolPoint(prev), next)
	d.Pos = next
}

func (d *Dragon) advancePatrol(dt float64) {
	prev := d.patrolAngle
	d.patrolAngle += dragonAngularSpeed * dt
	if d.patrolAngle >= 2*math.Pi {
		d.patrolAngle -= 2 * math.Pi
		d.laps++
	}

	next := d.patrolPoint(d.patrolAngle)
	d.Yaw = YawTowards(d.patrolPoint(prev), next)
	d.Pos = next

	if d.laps >= dragonLapThreshold {
		d.State = DragonFlyingToLand
	}
}

func (d *Dragon) advanceFlyingToLand(dt float64) {
	target := d.landing.Add(Vec3{Y: dragonApproachHeight})
	delta := target.Sub(d.Pos)
	dist := delta.Len()

	if dist <= dragonApproachSnap {
		d.Pos = target
		d.State = DragonLanding
		return
	}

	step := float32(dragonApproachSpeed * dt)
	if step > dist {
		step = dist
	}
	d.Pos = d.Pos.Add(delta.Scale(step / dist))
	d.Yaw = YawTowards(d.Pos, target)
}

func (d *Dragon) advanceLanding(dt float64, now time.Time) {
	delta := d.landing.Sub(d.Pos)
	dist := delta.Len()

	if dist <= dragonLandingSnap {
		d.Pos = d.landing
		d.State = DragonWait
		d.waitUntil = now.Add(dragonWaitDuration)
		return
	}

	speed := float64(dist) * dragonLandingGain
	if speed < dragonLandingMinSpd {
		speed = dragonLandingMinSpd
	}
	step := float32(speed * dt)
	if step > dist {
		step = dist
	}
	d.Pos = d.Pos.Add(delta.Scale(step / dist))
}

func (d *Dragon) advanceWait(players []*Player, now time.Time) {
	if target := nearestPlayer(players, d.Pos, dragonAttackRange); target != nil {
		d.TargetID = target.ID
		d.State = DragonAttacking
		d.attackStart = now
		d.hasHit = false
		return
	}

	if now.After(d.waitUntil) {
		d.State = DragonTakingOff
	}
}

func (d *Dragon) advanceAttacking(players []*Player, now time.Time) []Event {
	progress := float64(now.Sub(d.attackStart)) / float64(dragonAttackDuration)

	var events []Event
	if !d.hasHit && progress >= 0.5 {
		if target := findPlayer(players, d.TargetID); target != nil {
			targetPos := Vec3{X: target.Data.X, Y: target.Data.Y, Z: target.Data.Z}
			if HorizontalDist(d.Pos, targetPos) <= dragonAttackRange {
				d.hasHit = true
				dir := HorizontalDir(d.Pos, targetPos)
				events = append(events, PlayerDamageEvent{
					PlayerID: target.ID,
					Damage:   dragonAttackDamage,
					Knock: Vec3{
						X: dir.X * dragonKnockForce,
						Y: dragonKnockUp * dragonKnockForce,
						Z: dir.Z * dragonKnockForce,
					},
				})
			}
		}
	}

	if progress < 1 {
		return events
	}

	// timer expired: re-arm while the target stays in range
	target := findPlayer(players, d.TargetID)
	if target != nil {
		targetPos := Vec3{X: target.Data.X, Y: target.Data.Y, Z: target.Data.Z}
		if HorizontalDist(d.Pos, targetPos) <= dragonAttackRange {
			d.attackStart = now
			d.hasHit = false
			return events
		}
	}

	d.TargetID = 0
	d.State = DragonWait
	d.waitUntil = now.Add(dragonWaitDuration)
	return events
}

func (d *Dragon) advanceTakingOff(dt float64) {
	ceiling := d.center.Y + dragonPatrolAltitude*dragonTakeoffHeight
	d.Pos.Y += float32(dragonTakeoffSpeed * dt)

	if d.Pos.Y >= ceiling {
		d.State = DragonPatrol
		d.patrolAngle = 0
		d.laps = 0
	}
}

// TakeDamage deactivates the dragon at zero health. No stun, no global
// restart.
func (d *Dragon) TakeDamage(amount float32, attackerID uint32, now time.Time) []Event {
	if !d.Active {
		return nil
	}

	_ = attackerID
	_ = now

	d.Health -= amount
	if d.Health <= 0 {
		d.Active = false
	}
	return nil
}
