package internal

import (
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newApplication(opts []Option) *application {
	app := &application{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithIO replaces stdin, stdout and stderr. Client commands log to errOut
// so that out carries only command output.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *application) {
		a.in = in
		a.out = out
		a.errOut = errOut
	}
}
