// Command rltbl is the command-line interface to the table server:
// it runs the HTTP/CGI server, seeds the demo fixture, and drives reads
// and mutations directly against the configured database.
package main

import (
	"strconv"

	"github.com/alecthomas/kong"
	"gitlab.com/tozd/go/cli"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable"
	"gitlab.com/rltbl/relatable/query"
)

func main() {
	var config relatable.Config
	cli.Run(&config, kong.Vars{
		"defaultConnection": relatable.DefaultConnection,
		"defaultAddress":    relatable.DefaultAddress,
		"defaultLimit":      strconv.FormatInt(query.DefaultLimit, 10),
	}, func(ctx *kong.Context) errors.E {
		return errors.WithStack(ctx.Run(&config.Globals))
	})
}
