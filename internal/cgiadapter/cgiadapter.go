// Package cgiadapter lets the HTTP router run as a one-shot CGI
// process: when GATEWAY_INTERFACE=CGI/1.1 is set, the process
// reads a single request from stdin/the CGI environment and writes its
// response to stdout instead of listening on a socket.
package cgiadapter

import (
	"net/http"
	"net/http/cgi"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/rerr"
)

// GatewayInterfaceEnv is the environment variable the CGI protocol sets
// on the child process; its presence (value "CGI/1.1") is how the
// entry point decides whether to call Serve instead of ListenAndServe.
const GatewayInterfaceEnv = "GATEWAY_INTERFACE"

// Serve handles exactly one CGI request against handler, using the
// process's environment and stdin/stdout as net/http/cgi.Serve expects.
func Serve(handler http.Handler) errors.E {
	if err := cgi.Serve(handler); err != nil {
		return rerr.ExternalProcess(err, "cgi request failed")
	}
	return nil
}
