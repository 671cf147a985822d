package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config

	// serve --stdio: speak MCP on stdin/stdout instead of serving HTTP.
	stdio bool
	// init: write the scaffold commit into a fresh mirror.
	seed bool
	// sync --import: pull mirror markdown into the repository instead of
	// pushing repository state out.
	fromMirror bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStdio switches Run to the MCP stdio transport.
func WithStdio(enabled bool) Option {
	return func(a *application) {
		a.stdio = enabled
	}
}

// WithSeed makes InitMirror commit the scaffold files.
func WithSeed(enabled bool) Option {
	return func(a *application) {
		a.seed = enabled
	}
}

// WithImport makes Reconcile adopt mirror files into the repository.
func WithImport(enabled bool) Option {
	return func(a *application) {
		a.fromMirror = enabled
	}
}
