// Package config defines the relay server's runtime configuration and its
// flag-based parsing, in the teacher's style (main.go's flag.StringVar/
// flag.DurationVar block) rather than a YAML/template loader — spec.md's
// Non-goals explicitly exclude config-file/templating surfaces.
package config

import (
	"flag"
	"time"
)

// Config holds the relay server's runtime knobs. TimeOffset is the only
// test-mode setting; there are no network-emulation (latency or packet
// drop) settings.
type Config struct {
	BindAddr      string
	AdminBindAddr string

	DisconnectTimeout time.Duration

	// KeepAliveInterval, RetransmitBaseDelay and RetransmitMaxDelay are
	// parsed but not passed on: internal/reliability uses its own fixed
	// constants with the same default values.
	KeepAliveInterval time.Duration

	RetransmitBaseDelay time.Duration
	RetransmitMaxDelay  time.Duration

	// TimeOffset is applied to the server's clock for test scenarios that
	// need to fast-forward keep-alive/retransmit/disconnect timers
	// without sleeping real wall-clock time.
	TimeOffset time.Duration
}

// Default returns the configuration the server starts with before flags
// are parsed, matching the constants the teacher wires as flag defaults
// in main.go.
func Default() Config {
	return Config{
		BindAddr:            ":7777",
		AdminBindAddr:       ":7778",
		DisconnectTimeout:   30 * time.Second,
		KeepAliveInterval:   time.Second,
		RetransmitBaseDelay: 200 * time.Millisecond,
		RetransmitMaxDelay:  5 * time.Second,
	}
}

// RegisterFlags binds every Config field to the flag set, so callers can
// parse either flag.CommandLine (production) or a scratch *flag.FlagSet
// (tests) against the same definitions.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BindAddr, "bind", c.BindAddr, "UDP address to listen on for game traffic")
	fs.StringVar(&c.AdminBindAddr, "admin-bind", c.AdminBindAddr, "HTTP address for the read-only admin surface")
	fs.DurationVar(&c.DisconnectTimeout, "disconnect-timeout", c.DisconnectTimeout, "how long a session may go silent before being dropped")
	fs.DurationVar(&c.KeepAliveInterval, "keep-alive-interval", c.KeepAliveInterval, "how often an idle session sends a keep-alive frame")
	fs.DurationVar(&c.RetransmitBaseDelay, "retransmit-base-delay", c.RetransmitBaseDelay, "initial backoff before resending an unacked reliable frame")
	fs.DurationVar(&c.RetransmitMaxDelay, "retransmit-max-delay", c.RetransmitMaxDelay, "backoff ceiling for reliable frame retransmission")
	fs.DurationVar(&c.TimeOffset, "time-offset", c.TimeOffset, "test-only offset applied to the server clock")
}

// Parse builds a Config from command-line style args, for use by
// cmd/relay/main.go.
func Parse(args []string) (Config, error) {
	c := Default()
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return c, nil
}
