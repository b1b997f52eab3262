package config

import (
	"time"

	"github.com/spf13/pflag"
)

type CoordinatorConfig struct {
	Coordinator Coordinator
	Webrtc      Webrtc
}

type Coordinator struct {
	Debug       bool
	Mode        string `default:"dev"`
	LockFile    string `default:"coordinator.lock"`
	Server      Server
	Monitoring  Monitoring
	Rooms       Rooms
	Connection  Connection
	Auth        Auth
	Input       Input
	Browser     Browser
	Chat        Chat
	Persistence Persistence
}

type Rooms struct {
	// MaxOpen is the process-wide limit of concurrently open rooms.
	MaxOpen         int           `default:"100"`
	InactivityLimit time.Duration `default:"4h"`
	ReapInterval    time.Duration `default:"1m"`
}

type Connection struct {
	QueueSize      int           `default:"64"`
	MaxDrops       int           `default:"16"`
	MaxMessageSize int64         `default:"65536"`
	PongTimeout    time.Duration `default:"60s"`
}

type Auth struct {
	Secret string
	Issuer string
	// WorkerKey, when set, must be passed by browser workers as ?key=.
	WorkerKey string
}

type Input struct {
	Rate  float64 `default:"20"`
	Burst int     `default:"40"`
}

type Browser struct {
	RestartWindow time.Duration `default:"30s"`
	CommandQueue  int           `default:"128"`
	MaxFrameSize  int64         `default:"4194304"`
}

type Chat struct {
	MaxLength   int `default:"1000"`
	HistoryPage int `default:"50"`
	Workers     int `default:"2"`
	Queue       int `default:"256"`
}

type Persistence struct {
	RedisUrl      string
	MessageTtl    time.Duration `default:"24h"`
	ArchiveBucket string
}

// NewCoordinatorConfig reads the command line flags, loads the config
// and then applies every flag explicitly set on top of it.
// Returns the path of the loaded config file, empty if none was found.
func NewCoordinatorConfig(args []string) (conf CoordinatorConfig, path string, err error) {
	var dir string
	fs := pflag.NewFlagSet("coordinator", pflag.ContinueOnError)
	fs.StringVar(&dir, "c-conf", "", "Set custom configuration file path")
	overrides := conf.withFlags(fs)
	if err = fs.Parse(args); err != nil {
		return
	}
	if path, err = LoadConfig(&conf, dir); err != nil {
		return
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})
	if len(conf.Webrtc.IceServers) == 0 {
		conf.Webrtc.IceServers = DefaultIceServers
	}
	return
}

// withFlags registers the flags on a scratch copy so that the loaded
// values are only replaced by the flags a user has actually passed.
func (c *CoordinatorConfig) withFlags(fs *pflag.FlagSet) map[string]func() {
	var (
		tmp   CoordinatorConfig
		debug bool
		mport int
		lock  string
	)
	tmp.Coordinator.Server.WithFlags(fs)
	fs.BoolVar(&debug, "debug", false, "Enable debug logging")
	fs.IntVar(&mport, "monitoring.port", 0, "Monitoring server port")
	fs.StringVar(&lock, "lock", "", "Single instance lock file")
	s := &tmp.Coordinator.Server
	return map[string]func(){
		"address":         func() { c.Coordinator.Server.Address = s.Address },
		"httpsAddress":    func() { c.Coordinator.Server.Tls.Address = s.Tls.Address },
		"httpsKey":        func() { c.Coordinator.Server.Tls.HttpsKey = s.Tls.HttpsKey },
		"httpsCert":       func() { c.Coordinator.Server.Tls.HttpsCert = s.Tls.HttpsCert },
		"debug":           func() { c.Coordinator.Debug = debug },
		"monitoring.port": func() { c.Coordinator.Monitoring.Port = mport },
		"lock":            func() { c.Coordinator.LockFile = lock },
	}
}
