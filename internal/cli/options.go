// Package cli parses the cadabra command line.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/cadabra-cache/cadabra/internal/config"
)

// Options carries the parsed command line. Only flags the user actually set
// are applied over the configuration file.
type Options struct {
	ConfigPath   string
	Host         string
	Port         int
	DBPath       string
	SchemaPath   string
	Verbose      bool
	StrictConfig bool
	Args         []string

	set map[string]bool
}

// DefaultConfigPath is consulted when -config is not given; a missing file at
// this path is not an error.
const DefaultConfigPath = "cadabra.toml"

// Parse reads flags from args (not including the program name).
func Parse(args []string) (Options, error) {
	opts := Options{
		ConfigPath: DefaultConfigPath,
	}

	fs := flag.NewFlagSet("cadabra", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Path to configuration file")
	fs.StringVar(&opts.ConfigPath, "c", opts.ConfigPath, "Path to configuration file")
	fs.StringVar(&opts.Host, "host", "", "Listen host")
	fs.IntVar(&opts.Port, "port", 0, "Listen port")
	fs.StringVar(&opts.DBPath, "db", "", `Database path, or ":memory:"`)
	fs.StringVar(&opts.SchemaPath, "schema", "", "Optional CREATE TABLE file supplying primary-key hints")
	fs.BoolVar(&opts.StrictConfig, "strict-config", false, "Treat configuration warnings as errors")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.Verbose, "v", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("%w\n\n%s", err, Usage(fs))
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	opts.Args = fs.Args()
	return opts, nil
}

// ConfigPathSet reports whether -config was given explicitly, in which case a
// missing file is fatal.
func (o *Options) ConfigPathSet() bool {
	return o.set["config"] || o.set["c"]
}

// Apply overlays the explicitly-set flags onto cfg. Environment variables are
// applied after this, so the precedence is env over flag over file.
func (o *Options) Apply(cfg *config.Config) {
	if o.set["host"] {
		cfg.Host = o.Host
	}
	if o.set["port"] {
		cfg.Port = o.Port
	}
	if o.set["db"] {
		cfg.DBPath = o.DBPath
	}
	if o.set["schema"] {
		cfg.SchemaPath = o.SchemaPath
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
}

// Usage renders the flag set's help text.
func Usage(fs *flag.FlagSet) string {
	if fs == nil {
		return ""
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "Usage of %s:\n", fs.Name())
	out := fs.Output()
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(out)
	return buf.String()
}
