// Package commands provides the tonpay CLI commands.
//
// There are two ways to use commands from this package:
//
// 1. Via the Commands factory (recommended for most use cases):
//
//	cmds := commands.New(lggr)
//	root.AddCommand(cmds.All()...)
//
// 2. Via direct package imports (for advanced DI/testing):
//
//	import "github.com/kartacom/tonpay/pkg/commands/session"
//
//	root.AddCommand(session.NewPayCommand(session.Config{
//	    Logger: lggr,
//	    Deps:   &session.Deps{...}, // inject fakes for testing
//	}))
package commands

import (
	"github.com/spf13/cobra"

	"github.com/kartacom/tonpay/pkg/commands/session"
	"github.com/kartacom/tonpay/pkg/logger"
)

// Commands provides a factory for creating CLI commands with shared configuration.
// This allows setting the logger once and reusing it across all commands.
type Commands struct {
	lggr logger.Logger
	deps *session.Deps
}

// New creates a new Commands factory with the given logger.
// The logger will be shared across all commands created by this factory.
func New(lggr logger.Logger) *Commands {
	return &Commands{lggr: lggr}
}

// WithDeps returns a copy of the factory whose commands use deps.
func (c *Commands) WithDeps(deps *session.Deps) *Commands {
	return &Commands{lggr: c.lggr, deps: deps}
}

func (c *Commands) config() session.Config {
	return session.Config{Logger: c.lggr, Deps: c.deps}
}

// Connect creates the connect command.
func (c *Commands) Connect() *cobra.Command {
	return session.NewConnectCommand(c.config())
}

// Disconnect creates the disconnect command.
func (c *Commands) Disconnect() *cobra.Command {
	return session.NewDisconnectCommand(c.config())
}

// Status creates the status command.
func (c *Commands) Status() *cobra.Command {
	return session.NewStatusCommand(c.config())
}

// Pay creates the pay command.
func (c *Commands) Pay() *cobra.Command {
	return session.NewPayCommand(c.config())
}

// Config creates the config command.
func (c *Commands) Config() *cobra.Command {
	return session.NewConfigCommand(c.config())
}

// All creates every command.
//
// Usage:
//
//	root.AddCommand(commands.New(lggr).All()...)
func (c *Commands) All() []*cobra.Command {
	return []*cobra.Command{
		c.Connect(),
		c.Disconnect(),
		c.Status(),
		c.Pay(),
		c.Config(),
	}
}
