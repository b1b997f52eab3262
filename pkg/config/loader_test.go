package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	var out CoordinatorConfig

	path, err := LoadConfig(&out, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("no file expected, got %v", path)
	}

	c := out.Coordinator
	if c.Rooms.MaxOpen != 100 {
		t.Errorf("max open rooms %v is not 100", c.Rooms.MaxOpen)
	}
	if c.Rooms.InactivityLimit != 4*time.Hour {
		t.Errorf("inactivity limit %v is not 4h", c.Rooms.InactivityLimit)
	}
	if c.Connection.QueueSize != 64 {
		t.Errorf("queue size %v is not 64", c.Connection.QueueSize)
	}
	if c.Browser.RestartWindow != 30*time.Second {
		t.Errorf("restart window %v is not 30s", c.Browser.RestartWindow)
	}
	if c.Chat.MaxLength != 1000 {
		t.Errorf("chat max length %v is not 1000", c.Chat.MaxLength)
	}
}

func TestConfigEnv(t *testing.T) {
	var out CoordinatorConfig

	t.Setenv("WATCHPARTY_COORDINATOR_ROOMS_MAXOPEN", "7")
	t.Setenv("WATCHPARTY_COORDINATOR_AUTH_SECRET", "s3cr3t")

	if _, err := LoadConfig(&out, t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if out.Coordinator.Rooms.MaxOpen != 7 {
		t.Errorf("%v is not 7", out.Coordinator.Rooms.MaxOpen)
	}
	if out.Coordinator.Auth.Secret != "s3cr3t" {
		t.Errorf("%v is not s3cr3t", out.Coordinator.Auth.Secret)
	}
}

func writeConfig(t *testing.T, dir, data string) string {
	t.Helper()
	p := filepath.Join(dir, FileName)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
coordinator:
  server:
    address: :7000
  rooms:
    maxOpen: 3
webrtc:
  iceServers:
    - urls: stun:{server-ip}:3478
`)

	tests := []struct {
		name    string
		args    []string
		address string
		debug   bool
	}{
		{name: "file only", args: []string{"--c-conf", dir}, address: ":7000"},
		{name: "flag wins", args: []string{"--c-conf", dir, "--address", ":9000", "--debug"}, address: ":9000", debug: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, path, err := NewCoordinatorConfig(tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if path == "" {
				t.Errorf("file path is empty")
			}
			if conf.Coordinator.Server.Address != tt.address {
				t.Errorf("address %v is not %v", conf.Coordinator.Server.Address, tt.address)
			}
			if conf.Coordinator.Debug != tt.debug {
				t.Errorf("debug %v is not %v", conf.Coordinator.Debug, tt.debug)
			}
			if conf.Coordinator.Rooms.MaxOpen != 3 {
				t.Errorf("max open %v is not 3", conf.Coordinator.Rooms.MaxOpen)
			}
			if conf.Coordinator.Rooms.ReapInterval != time.Minute {
				t.Errorf("reap interval default is lost: %v", conf.Coordinator.Rooms.ReapInterval)
			}
			if len(conf.Webrtc.IceServers) != 1 || conf.Webrtc.IceServers[0].Urls != "stun:{server-ip}:3478" {
				t.Errorf("unexpected ice servers %v", conf.Webrtc.IceServers)
			}
		})
	}
}

func TestDefaultIceServers(t *testing.T) {
	conf, _, err := NewCoordinatorConfig([]string{"--c-conf", t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if len(conf.Webrtc.IceServers) == 0 {
		t.Errorf("no default ice servers")
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "webrtc:\n  iceServers:\n    - urls: stun:a:1\n")

	changes := make(chan Webrtc, 4)
	w := NewWatcher(path, func(w Webrtc) { changes <- w }, func(err error) { t.Logf("watch: %v", err) })
	w.Run()
	defer func() { _ = w.Shutdown(context.Background()) }()

	writeConfig(t, dir, "webrtc:\n  iceServers:\n    - urls: stun:b:2\n")

	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if len(c.IceServers) == 1 && c.IceServers[0].Urls == "stun:b:2" {
				return
			}
		case <-timeout:
			t.Fatal("no reload after the file change")
		}
	}
}
