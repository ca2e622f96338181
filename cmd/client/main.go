// A manual smoke-test client: joins the server, walks a slow circle and
// logs what the broadcasts report. Useful for poking at a running
// server without a real game client.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blomqvist/feyarena/internal/gameclient"
	"github.com/blomqvist/feyarena/internal/protocol"
	"github.com/phuslu/log"
)

func erringMain() error {
	address := "127.0.0.1:5000"
	name := "smoketest"
	if len(os.Args) > 1 {
		address = os.Args[1]
	}
	if len(os.Args) > 2 {
		name = os.Args[2]
	}

	logger := log.DefaultLogger
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	gc, err := gameclient.NewGameClient("udp4", address, &logger)
	if err != nil {
		return fmt.Errorf("could not construct game client: %w", err)
	}
	defer gc.Close()

	ack, err := gc.Join(name, 2*time.Second)
	if err != nil {
		return fmt.Errorf("could not join: %w", err)
	}
	logger.Info().Msgf("joined as player %d at (%.1f, %.1f, %.1f)",
		ack.PlayerID, ack.SpawnX, ack.SpawnY, ack.SpawnZ)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gc.Run(ctx)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	moveTicker := time.NewTicker(100 * time.Millisecond)
	defer moveTicker.Stop()
	reportTicker := time.NewTicker(time.Second)
	defer reportTicker.Stop()

	angle := 0.0
	for {
		select {
		case <-signalChan:
			logger.Info().Msg("leaving")
			return gc.SendLeave()
		case <-moveTicker.C:
			angle += 0.05
			data := protocol.PlayerData{
				X:      ack.SpawnX + float32(5*math.Cos(angle)),
				Y:      ack.SpawnY,
				Z:      ack.SpawnZ + float32(5*math.Sin(angle)),
				Yaw:    float32(angle),
				State:  protocol.PlayerWalking,
				Health: 100,
			}
			data.SetAnim("walk")
			if err := gc.SendUpdate(&data); err != nil {
				return fmt.Errorf("could not send update: %w", err)
			}
		case <-reportTicker.C:
			ws := gc.WorldState()
			es := gc.EntityState()
			logger.Info().Msgf("seeing %d players, %d entities, host=%d",
				len(ws.Players), len(es.Entities), gc.HostID())
		}
	}
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
