package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Travis-Britz/gddns"
	"github.com/Travis-Britz/gddns/mlog"
)

type globalFlags struct {
	configFile string
	cacheDir   string
	logLevel   string
}

var flags = new(globalFlags)

var rootCmd = &cobra.Command{
	Use:   "gddns",
	Short: "Keep dynamic DNS records pointed at this host's public IP.",
	Long: `Without a subcommand, gddns updates every host in the config file once.

Outcomes are cached per host so the update server is only contacted when the IP changed.
A host that failed with a fatal error is not retried until its cache entry is cleared with
"gddns clear-cache"; a host that failed with a server error waits for its server_backoff.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zapcore.ParseLevel(flags.logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		mlog.SetLevel(level)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateFromConfig(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config-file", gddns.DefaultConfigFile, "Path to config file")
	pf.StringVar(&flags.cacheDir, "cache-dir", "", "Path to response cache directory (default from config, then "+gddns.DefaultCacheDir+")")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level for messages printed before the config is loaded")

	rootCmd.AddCommand(
		newUpdateHostCmd(),
		newClearCacheCmd(),
		newStatusCmd(),
		newDaemonCmd(),
		newServiceCmd(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		mlog.S().Error(err)
		os.Exit(1)
	}
}

func updateFromConfig(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	resolver, err := cfg.PublicIP.Resolver(nil)
	if err != nil {
		return err
	}
	hosts, err := cfg.NewHosts(nil, logger)
	if err != nil {
		return err
	}
	ip, err := resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("failed to get public IP: %w", err)
	}
	logger.Debug("got public IP", zap.Stringer("ip", ip))

	u := &gddns.Updater{
		Cache:  gddns.NewResponseCache(cacheDir(cfg), gddns.CacheWithLogger(logger)),
		Logger: logger,
	}
	return u.UpdateAll(ctx, hosts, ip)
}

// loadConfig reads the config file and builds the logger it describes.
func loadConfig() (*gddns.Config, *zap.Logger, error) {
	cfg, err := gddns.LoadConfig(flags.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := mlog.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logger, nil
}

// cacheDir picks the cache directory: --cache-dir, then the config file, then the default.
func cacheDir(cfg *gddns.Config) string {
	switch {
	case flags.cacheDir != "":
		return flags.cacheDir
	case cfg != nil && cfg.CacheDir != "":
		return cfg.CacheDir
	default:
		return gddns.DefaultCacheDir
	}
}

// cacheDirWithoutHosts is cacheDir for commands that do not need the rest of the config file.
// Only cache_dir is read, so a missing config file or unset credentials are not errors for them.
func cacheDirWithoutHosts() (string, error) {
	if flags.cacheDir != "" {
		return flags.cacheDir, nil
	}
	dir, err := gddns.ReadCacheDir(flags.configFile)
	if errors.Is(err, fs.ErrNotExist) {
		mlog.L().Debug("no config file, using default cache dir", zap.String("file", flags.configFile))
		return gddns.DefaultCacheDir, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if dir == "" {
		return gddns.DefaultCacheDir, nil
	}
	return dir, nil
}
