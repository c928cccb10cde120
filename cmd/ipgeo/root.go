package main

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ic-timon/ipgeo/config"
	"github.com/ic-timon/ipgeo/mmdb"
)

type options struct {
	configFile string
	envFiles   []string
	dbPath     string
	logLevel   string
	useMmap    bool

	cfg    config.Config
	logger log.Logger
}

func newRootCommand() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "ipgeo",
		Short:         "Look up IP addresses in a MaxMind DB file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.configFile, "config", "", "YAML config file")
	flags.StringSliceVar(&o.envFiles, "env-file", []string{".env"}, "env files read if they exist")
	flags.StringVar(&o.dbPath, "db", "", "database file, overrides geo.db_path")
	flags.StringVar(&o.logLevel, "log.level", "", "debug, info, warn or error, overrides log_level")
	flags.BoolVar(&o.useMmap, "mmap", true, "map the database instead of reading it into memory")

	root.AddCommand(
		newLookupCommand(o),
		newCountryCommand(o),
		newNetworkCommand(o),
		newMetadataCommand(o),
		newVerifyCommand(o),
	)
	return root
}

func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configFile, o.envFiles...)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Geo.DBPath = o.dbPath
	}
	if flags.Changed("log.level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("mmap") {
		cfg.Geo.UseMmap = o.useMmap
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	o.cfg = cfg
	o.logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	return nil
}

func newLogger(w io.Writer, lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	var allow level.Option
	switch lvl {
	case "debug":
		allow = level.AllowDebug()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}
	logger = level.NewFilter(logger, allow)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// openReader opens the configured database directly, bypassing the cache.
func (o *options) openReader() (*mmdb.Reader, error) {
	cfg := mmdb.DefaultConfig()
	cfg.UseMmap = o.cfg.Geo.UseMmap
	r, err := mmdb.Open(o.cfg.Geo.DBPath, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	return r, nil
}
