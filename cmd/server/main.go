package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/blomqvist/feyarena/internal/config"
	"github.com/blomqvist/feyarena/internal/gameserver"
	"github.com/blomqvist/feyarena/internal/world"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"
)

var (
	configPath      string
	testMultiplayer bool
	version         = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "feyarena [port]",
	Short: "Feyarena authoritative multiplayer game server",
	Long: `Feyarena is the authoritative UDP game server: it admits players and
spectators, runs the enemy AI simulation and broadcasts world and
entity snapshots to everyone connected.`,
	Version: version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML configuration file")
	rootCmd.PersistentFlags().BoolVar(&testMultiplayer, "test-multiplayer", false, "disable AI (entities idle / non-attacking patrol)")
	rootCmd.SilenceUsage = true
}

func configureLogger() *log.Logger {
	logger := log.DefaultLogger

	// https://github.com/phuslu/log?tab=readme-ov-file#pretty-console-writer
	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	if len(args) == 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port argument %q: %w", args[0], err)
		}
		cfg.Port = port
	}
	if testMultiplayer {
		cfg.TestMultiplayer = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := configureLogger()

	w := world.NewWorld(!cfg.TestMultiplayer, nil)
	for i := 0; i < cfg.BobbaCount; i++ {
		w.SpawnBobba(world.DefaultBobbaSpawns[i%len(world.DefaultBobbaSpawns)])
	}
	for i := 0; i < cfg.DragonCount; i++ {
		w.SpawnDragon(world.DefaultDragonCenter, world.DefaultDragonLanding)
	}

	gs, err := gameserver.NewGameServer("udp4", cfg.Addr(), w, logger)
	if err != nil {
		return fmt.Errorf("could not construct game server: %w", err)
	}
	gs.SetCadence(cfg.WorldInterval(), cfg.EntityInterval())

	logger.Info().
		Bool("ai", !cfg.TestMultiplayer).
		Int("bobbas", cfg.BobbaCount).
		Int("dragons", cfg.DragonCount).
		Msgf("started game server on %s", cfg.Addr())

	wg := new(sync.WaitGroup)
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = gs.Run(ctx)
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-signalChan
	logger.Info().Msgf("received %v signal, shutting down", sig)

	cancel()
	wg.Wait()
	if runErr != nil {
		return fmt.Errorf("game server run failed: %w", runErr)
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
