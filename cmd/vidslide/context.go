package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"vidslide/internal/config"
	"vidslide/internal/ipc"
)

// skipConfigAnnotation marks commands that must run without a loadable
// config, such as `config init`.
const skipConfigAnnotation = "skipConfigLoad"

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	socket string
	config string
	json   bool
}

// commandContext resolves configuration and the daemon socket once per
// invocation.
type commandContext struct {
	flags *globalFlags
	load  func() (*config.Config, error)
}

func newCommandContext(flags *globalFlags) *commandContext {
	c := &commandContext{flags: flags}
	c.load = sync.OnceValues(func() (*config.Config, error) {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			return nil, err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return cfg, nil
	})
	return c
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.flags.config)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	return c.load()
}

// configValue returns the loaded config or nil when loading failed.
func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.load()
	return cfg
}

func (c *commandContext) jsonOutput() bool {
	return c.flags.json
}

func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.flags.socket); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	return filepath.Join(os.TempDir(), "vidslide.sock")
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err == nil {
		return client, nil
	}
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `vidslide daemon start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return nil, fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	default:
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}
