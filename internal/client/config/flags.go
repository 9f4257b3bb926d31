package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
)

var knownFlags = []string{"-u", "-k", "-p", "-d", "-r", "-g", "-l", "-i", "-log-level", "-postgres"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-u string          backend base URL
//	-k string          anon API key
//	-p string          project ref (selects the combined storage key)
//	-d string          path of the local state database
//	-r string          redis address of the credential replica
//	-g string          gRPC data-plane address
//	-l string          portal listen address
//	-i int             online check interval (in seconds)
//	-log-level string  debug, info, warn or error
//	-postgres string   DSN of the profiles database
//
// Note: os.Args is filtered with flagx.FilterArgs so flags owned by other
// loaders (-c, -env-file) do not interfere.
func parseFlags(cfg *Config) error {
	return parseArgs(cfg, os.Args[1:])
}

func parseArgs(cfg *Config, argv []string) error {
	args := flagx.FilterArgs(argv, knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BackendURL, "u", cfg.BackendURL, "backend base URL")
	fs.StringVar(&cfg.AnonKey, "k", cfg.AnonKey, "anon API key")
	fs.StringVar(&cfg.ProjectRef, "p", cfg.ProjectRef, "project ref")
	fs.StringVar(&cfg.StatePath, "d", cfg.StatePath, "local state database")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "gRPC data-plane address")
	fs.StringVar(&cfg.ListenAddr, "l", cfg.ListenAddr, "portal listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.PostgresDSN, "postgres", cfg.PostgresDSN, "profiles database DSN")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	return nil
}
