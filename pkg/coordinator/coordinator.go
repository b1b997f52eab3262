package coordinator

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
	"github.com/watchparty/coordinator/pkg/config"
	"github.com/watchparty/coordinator/pkg/environment"
	"github.com/watchparty/coordinator/pkg/ice"
	"github.com/watchparty/coordinator/pkg/identity"
	"github.com/watchparty/coordinator/pkg/logger"
	"github.com/watchparty/coordinator/pkg/monitoring"
	"github.com/watchparty/coordinator/pkg/network/httpx"
	"github.com/watchparty/coordinator/pkg/persistence"
	"github.com/watchparty/coordinator/pkg/service"
	"github.com/watchparty/coordinator/pkg/storage"
)

var ErrNoSecret = errors.New("auth secret is required outside of dev mode")

type Coordinator struct {
	service.Group

	dir   *Directory
	hub   *Hub
	store persistence.Store
	cloud *storage.GoogleCloudClient
	ice   atomic.Pointer[[]webrtc.ICEServer]
	log   *logger.Logger
}

// New builds the coordinator with all of its services.
// The path of the loaded config file enables hot reload of ICE servers.
func New(ctx context.Context, conf config.CoordinatorConfig, path string, log *logger.Logger) (*Coordinator, error) {
	c := &Coordinator{log: log}
	cc := conf.Coordinator

	servers, err := ice.FromConfig(conf.Webrtc)
	if err != nil {
		return nil, err
	}
	c.ice.Store(&servers)

	provider, err := newProvider(cc)
	if err != nil {
		return nil, err
	}

	if cc.Persistence.RedisUrl != "" {
		if c.store, err = persistence.NewRedis(ctx, cc.Persistence.RedisUrl, cc.Persistence.MessageTtl); err != nil {
			return nil, err
		}
		log.Info().Msg("Chat history is kept in Redis")
	} else {
		c.store = persistence.NewMemory(cc.Persistence.MessageTtl)
	}
	var archive *persistence.Archive
	if bucket := cc.Persistence.ArchiveBucket; bucket != "" {
		if c.cloud, err = storage.NewGoogleCloudClient(ctx, bucket); err != nil {
			log.Warn().Err(err).Msg("Transcript archive is disabled")
		} else {
			archive = persistence.NewArchive(c.store, c.cloud)
		}
	}
	persister := NewPersister(c.store, archive, cc.Chat.Workers, cc.Chat.Queue, log)

	guild := NewGuild(log)
	c.dir = NewDirectory(DirectoryOptions{
		MaxOpen:       cc.Rooms.MaxOpen,
		Capacity:      DefaultCapacity,
		ChatMaxLength: cc.Chat.MaxLength,
		RestartWindow: cc.Browser.RestartWindow,
		Bridge:        guild,
		Persister:     persister,
		Ice:           c.IceServers,
	}, log)
	guild.SetEvents(c.dir)

	c.hub = NewHub(cc, c.dir, guild, c.store, provider, log)
	server, err := httpx.NewServer(cc.Server.GetAddr(),
		func(s *httpx.Server) httpx.Handler {
			mux := s.Mux()
			c.hub.Routes(mux)
			return mux
		},
		httpx.WithServerConfig(cc.Server),
		httpx.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	// stopped in reverse: the server stops accepting, the hub closes
	// the rooms and the persister drains their records
	c.Add(persister, NewReaper(c.dir, cc.Rooms.InactivityLimit, cc.Rooms.ReapInterval, log), c.hub, server)
	if path != "" {
		c.Add(config.NewWatcher(path, c.reloadIce, func(err error) {
			log.Warn().Err(err).Msg("config watch")
		}))
	}
	if cc.Monitoring.IsEnabled() {
		mon, err := monitoring.New(cc.Monitoring, log)
		if err != nil {
			return nil, err
		}
		c.Add(mon)
	}
	return c, nil
}

func newProvider(cc config.Coordinator) (identity.Provider, error) {
	if cc.Auth.Secret != "" {
		return identity.NewJWT(cc.Auth.Secret, cc.Auth.Issuer), nil
	}
	if environment.Env(cc.Mode).IsDev() {
		return identity.Insecure{}, nil
	}
	return nil, ErrNoSecret
}

func (c *Coordinator) IceServers() []webrtc.ICEServer { return *c.ice.Load() }

func (c *Coordinator) reloadIce(conf config.Webrtc) {
	servers, err := ice.FromConfig(conf)
	if err != nil {
		c.log.Warn().Err(err).Msg("ICE servers are not changed")
		return
	}
	c.ice.Store(&servers)
	c.log.Info().Int("servers", len(servers)).Msg("ICE servers reloaded")
}

func (c *Coordinator) Directory() *Directory { return c.dir }

func (c *Coordinator) Start() { c.Group.Start() }

// Shutdown stops the services, rooms are closed once the server
// no longer accepts connections.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	err := c.Group.Shutdown(ctx)
	if c.cloud != nil {
		_ = c.cloud.Close()
	}
	return errors.Join(err, c.store.Close())
}
