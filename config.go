// Package relatable wires the query/tableset/change core onto a
// runnable command-line and HTTP surface: flag/environment/config-file
// precedence, logging, and the command tree kong dispatches to.
package relatable

import (
	"os/user"

	"github.com/alecthomas/kong"
	"gitlab.com/tozd/go/cli"
	"gitlab.com/tozd/go/zerolog"
)

const (
	// DefaultConnection is the database path used when neither
	// --connection nor RLTBL_CONNECTION is set.
	DefaultConnection = "rltbl.db"
	// DefaultAddress is the address the "serve" command listens on by default.
	DefaultAddress = "127.0.0.1:3000"
)

// Globals describes top-level (global) flags shared by every command,
// holding the connection/user state the CLI resolves from
// flags, environment variables, or (for the user) the OS account.
//
//nolint:lll
type Globals struct {
	zerolog.LoggingConfig `yaml:",inline"`

	Version kong.VersionFlag `help:"Show program's version and exit."                                              short:"V" yaml:"-"`
	Config  cli.ConfigFlag   `help:"Load configuration from a JSON or YAML file." name:"config" placeholder:"PATH" short:"c" yaml:"-"`

	Connection string `default:"${defaultConnection}" env:"RLTBL_CONNECTION" help:"Database path (embedded) or postgres:// URL (server)." placeholder:"PATH-OR-URL" short:"C" yaml:"connection"`
	User       string `                                env:"RLTBL_USER"      help:"Username recorded against changes. Defaults to the OS user."                       placeholder:"NAME"        short:"u" yaml:"user"`
	Readonly   bool   `                                                       help:"Refuse all writes regardless of table or user."                                                                        yaml:"readonly"`
}

// ResolveUser returns the username the CLI should act as: the
// --user flag (or RLTBL_USER, which kong's env tag already folds into
// the same field), falling back to the OS account name.
func (g *Globals) ResolveUser() string {
	if g.User != "" {
		return g.User
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

// Config is the top-level kong command tree.
//
//nolint:lll
type Config struct {
	Globals `yaml:"globals"`

	Serve   ServeCommand   `cmd:"" default:"withargs" help:"Run the rltbl HTTP server (or a single CGI request, per GATEWAY_INTERFACE)." yaml:"serve"`
	Demo    DemoCommand    `cmd:""                    help:"Seed the configured database with the worked penguin/egg example."            yaml:"demo"`
	Get     GetCommand     `cmd:""                    help:"Read rows from a table, printed to the terminal."                             yaml:"get"`
	Add     AddCommand     `cmd:""                    help:"Add a row to a table."                                                        yaml:"add"`
	Delete  DeleteCommand  `cmd:""                    help:"Delete a row from a table."                                                   yaml:"delete"`
	Update  UpdateCommand  `cmd:""                    help:"Update one cell of a row."                                                    yaml:"update"`
	Move    MoveCommand    `cmd:""                    help:"Move a row to a new position within its table."                               yaml:"move"`
	Undo    UndoCommand    `cmd:""                    help:"Undo the user's most recent not-yet-undone change."                           yaml:"undo"`
	Redo    RedoCommand    `cmd:""                    help:"Redo the user's most recently undone change."                                 yaml:"redo"`
	History HistoryCommand `cmd:""                    help:"Show the change history recorded against a table."                            yaml:"history"`
	Status  StatusCommand  `cmd:""                    help:"Show the git workspace status of the current directory."                      yaml:"status"`
}
