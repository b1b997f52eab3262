package main

import (
	"context"
	goos "os"

	"github.com/watchparty/coordinator/pkg/config"
	"github.com/watchparty/coordinator/pkg/coordinator"
	"github.com/watchparty/coordinator/pkg/logger"
	"github.com/watchparty/coordinator/pkg/os"
)

var Version = "?"

func main() {
	conf, path, err := config.NewCoordinatorConfig(goos.Args[1:])
	if err != nil {
		logger.Default().Fatal().Err(err).Msg("config")
	}

	log := logger.NewConsole(conf.Coordinator.Debug, "c", false)

	log.Info().Msgf("version %s", Version)
	if path != "" {
		log.Info().Msgf("config: %s", path)
	}
	if log.GetLevel() < logger.InfoLevel {
		cc := conf.Coordinator
		log.Debug().Msgf("rooms: %+v, connection: %+v, input: %+v", cc.Rooms, cc.Connection, cc.Input)
	}

	lock, err := os.NewFileLock(conf.Coordinator.LockFile)
	if err != nil {
		log.Fatal().Err(err).Msg("lock")
	}
	if err = lock.TryLock(); err != nil {
		log.Fatal().Err(err).Str("file", lock.Path()).Msg("another coordinator is running")
	}
	defer func() { _ = lock.Unlock() }()

	c, err := coordinator.New(context.Background(), conf, path, log)
	if err != nil {
		log.Error().Err(err).Msg("coordinator init")
		return
	}
	c.Start()

	<-os.ExpectTermination()
	ctx, cancel := context.WithTimeout(context.Background(), conf.Coordinator.Server.ShutdownTimeout)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
