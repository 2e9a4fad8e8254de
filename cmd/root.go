package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"go/dirhook/config"
)

type flags struct {
	configPath     string
	dir            string
	workerURL      string
	maxInFlight    int
	connectTimeout time.Duration
	requestTimeout time.Duration
	lockPath       string
	logFormat      string
	verbose        bool
}

// NewRootCommand builds the dirhook command. run receives the resolved,
// validated configuration.
func NewRootCommand(run func(cfg *config.Config) error, getenv func(string) string) *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "dirhook",
		Short: "Notify a worker over HTTP for every file created in a directory",
		Long: `dirhook watches a single directory (non-recursively) and, for every file
created in it, POSTs an empty request to <worker-url><file name>.

Files ending in .processing or .done are ignored. The worker URL defaults to
` + config.DefaultWorkerURL + ` and can be overridden with the ` + config.WorkerURLEnv + `
environment variable, a config file, or --worker-url.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath, getenv, f.overrides(cmd)...)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	fs := rootCmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&f.dir, "dir", config.DefaultDir, "Directory to watch")
	fs.StringVar(&f.workerURL, "worker-url", config.DefaultWorkerURL, "Base URL the file name is appended to")
	fs.IntVar(&f.maxInFlight, "max-in-flight", config.DefaultMaxInFlight, "Maximum concurrent notifications")
	fs.DurationVar(&f.connectTimeout, "connect-timeout", config.DefaultConnectTimeout, "Timeout for connecting to the worker")
	fs.DurationVar(&f.requestTimeout, "request-timeout", 0, "Timeout for a whole notification (0 disables it)")
	fs.StringVar(&f.lockPath, "lock", "", "Lock file that prevents a second instance (disabled when empty)")
	fs.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "Log format: auto, console or json")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose logging")

	return rootCmd
}

// overrides returns setters for the flags set on the command line only.
func (f *flags) overrides(cmd *cobra.Command) []func(*config.Config) {
	var out []func(*config.Config)
	changed := cmd.Flags().Changed

	if changed("dir") {
		out = append(out, func(c *config.Config) { c.Dir = f.dir })
	}
	if changed("worker-url") {
		out = append(out, func(c *config.Config) { c.WorkerURL = f.workerURL })
	}
	if changed("max-in-flight") {
		out = append(out, func(c *config.Config) { c.MaxInFlight = f.maxInFlight })
	}
	if changed("connect-timeout") {
		out = append(out, func(c *config.Config) { c.ConnectTimeout = f.connectTimeout })
	}
	if changed("request-timeout") {
		out = append(out, func(c *config.Config) { c.RequestTimeout = f.requestTimeout })
	}
	if changed("lock") {
		out = append(out, func(c *config.Config) { c.LockPath = f.lockPath })
	}
	if changed("log-format") {
		out = append(out, func(c *config.Config) { c.LogFormat = f.logFormat })
	}
	if changed("verbose") {
		out = append(out, func(c *config.Config) { c.Verbose = f.verbose })
	}
	return out
}

// Execute runs the root command against os.Args and the process environment.
func Execute(run func(cfg *config.Config) error) error {
	return NewRootCommand(run, os.Getenv).Execute()
}
