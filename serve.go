package relatable

import (
	"context"
	"net/http"
	"os"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/change"
	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/internal/cgiadapter"
	"gitlab.com/rltbl/relatable/internal/httpapi"
)

// ServeCommand runs the HTTP router. When the process is launched with
// GATEWAY_INTERFACE=CGI/1.1 set it instead serves exactly one request
// read from stdin/the CGI environment.
type ServeCommand struct {
	Address string `default:"${defaultAddress}" help:"Address to listen on." placeholder:"HOST:PORT" yaml:"address"`
}

// Run opens the configured database, builds the HTTP router, and
// either serves it over a socket or, under CGI, handles one request.
func (c *ServeCommand) Run(globals *Globals) errors.E {
	ctx := context.Background()
	d, errE := db.Connect(ctx, globals.Connection)
	if errE != nil {
		return errE
	}
	defer func() { _ = d.Close() }()

	wd, _ := os.Getwd()
	server := &httpapi.Server{
		DB:         d,
		Engine:     change.New(d, globals.Readonly),
		WorkingDir: wd,
	}
	mux := httpapi.NewMux(server)

	if os.Getenv(cgiadapter.GatewayInterfaceEnv) == "CGI/1.1" {
		return cgiadapter.Serve(mux)
	}

	globals.Logger.Info().Str("address", c.Address).Msg("listening")
	if err := http.ListenAndServe(c.Address, mux); err != nil { //nolint:gosec
		return errors.WithStack(err)
	}
	return nil
}
