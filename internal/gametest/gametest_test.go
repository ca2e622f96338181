package gametest_test

import (
	"context"
	"testing"
	"time"

	"github.com/blomqvist/feyarena/internal/gameclient"
	"github.com/blomqvist/feyarena/internal/gameserver"
	"github.com/blomqvist/feyarena/internal/protocol"
	"github.com/blomqvist/feyarena/internal/world"
	"github.com/matryer/is"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestTwoPlayersSeeEachOther(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gs, err := gameserver.NewGameServer("udp4", ":0", world.NewWorld(false, nil), nil)
	is.NoErr(err)
	go gs.Run(ctx)

	// player one joins and starts listening

	one, err := gameclient.NewGameClient("udp4", gs.Addr().String(), nil)
	is.NoErr(err)
	defer one.Close()

	ackOne, err := one.Join("alice", time.Second)
	is.NoErr(err)
	is.Equal(ackOne.PlayerID, uint32(1))
	go one.Run(ctx)

	// player two does the same

	two, err := gameclient.NewGameClient("udp4", gs.Addr().String(), nil)
	is.NoErr(err)
	defer two.Close()

	ackTwo, err := two.Join("bob", time.Second)
	is.NoErr(err)
	is.Equal(ackTwo.PlayerID, uint32(2))
	go two.Run(ctx)

	// player one moves; player two sees the new position

	move := protocol.PlayerData{X: 10, Y: 2, Z: 10, Health: 100, State: protocol.PlayerWalking}
	move.SetAnim("walk")
	is.NoErr(one.SendUpdate(&move))

	ok := waitFor(t, 2*time.Second, func() bool {
		for _, p := range two.WorldState().Players {
			if p.PlayerID == ackOne.PlayerID && p.Data.X == 10 && p.Data.Z == 10 {
				return true
			}
		}
		return false
	})
	is.True(ok)

	// both players learned who the host is
	ok = waitFor(t, 2*time.Second, func() bool {
		return two.HostID() == ackOne.PlayerID
	})
	is.True(ok)
}

func TestBobbaKillResetsEncounter(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := world.NewWorld(false, nil)
	bobba := w.SpawnBobba(world.Vec3{X: 5, Y: 0, Z: 5})

	gs, err := gameserver.NewGameServer("udp4", ":0", w, nil)
	is.NoErr(err)
	go gs.Run(ctx)

	client, err := gameclient.NewGameClient("udp4", gs.Addr().String(), nil)
	is.NoErr(err)
	defer client.Close()

	_, err = client.Join("slayer", time.Second)
	is.NoErr(err)
	go client.Run(ctx)

	// entity snapshots report the live bobba
	ok := waitFor(t, 2*time.Second, func() bool {
		es := client.EntityState()
		return len(es.Entities) == 1 && es.Entities[0].Kind == protocol.EntityKindBobba
	})
	is.True(ok)

	// overkill damage: death must produce exactly one restart notice
	is.NoErr(client.SendEntityDamage(bobba.ID, 150, client.PlayerID()))

	ok = waitFor(t, 2*time.Second, func() bool {
		return len(client.Restarts()) == 1
	})
	is.True(ok)
	is.Equal(client.Restarts()[0], "enemy died")

	// and the bobba comes back at full health
	ok = waitFor(t, 2*time.Second, func() bool {
		es := client.EntityState()
		return len(es.Entities) == 1 && es.Entities[0].Health == 100
	})
	is.True(ok)

	time.Sleep(300 * time.Millisecond)
	is.Equal(len(client.Restarts()), 1)
}

func TestSpectatorWatchesWithoutPlaying(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gs, err := gameserver.NewGameServer("udp4", ":0", world.NewWorld(false, nil), nil)
	is.NoErr(err)
	go gs.Run(ctx)

	spectator, err := gameclient.NewGameClient("udp4", gs.Addr().String(), nil)
	is.NoErr(err)
	defer spectator.Close()

	is.NoErr(spectator.Spectate(time.Second))
	go spectator.Run(ctx)

	player, err := gameclient.NewGameClient("udp4", gs.Addr().String(), nil)
	is.NoErr(err)
	defer player.Close()

	_, err = player.Join("alice", time.Second)
	is.NoErr(err)

	ok := waitFor(t, 2*time.Second, func() bool {
		ws := spectator.WorldState()
		return len(ws.Players) == 1
	})
	is.True(ok)
}
