package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"threadwatch/internal/app"
	"threadwatch/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// defaultReloadMinutes is the watch list reload interval used when -r
// is given without an explicit reload time.
const defaultReloadMinutes = 5

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp loads the config, overlays command-line flags, and builds the
// application. The caller must defer a.Close().
func newApp(cmd *cobra.Command) (*app.App, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	applyFlags(cmd, cfg)

	a, err := app.NewApp(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, cfg, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	path := defaults["config_path"]
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		path = v
	}

	cfg, err := config.Load(path, defaults["home"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return cfg, nil
}

// applyFlags copies explicitly set flags over the loaded config. Flags
// left at their defaults never override the file.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	if f.Changed("verbose") {
		cfg.Watch.Verbose, _ = f.GetBool("verbose")
	}
	if f.Changed("date") {
		cfg.Watch.DateInLog, _ = f.GetBool("date")
	}
	if f.Changed("counter") {
		cfg.Watch.Counter, _ = f.GetBool("counter")
	}
	if f.Changed("use-names") {
		cfg.Watch.PreferNames, _ = f.GetBool("use-names")
	}
	if f.Changed("titles") {
		cfg.Watch.Titles, _ = f.GetBool("titles")
	}
	if f.Changed("origin-names") {
		cfg.Watch.OriginNames, _ = f.GetBool("origin-names")
	}
	if f.Changed("subjects") {
		cfg.Watch.SubjectNames, _ = f.GetBool("subjects")
	}
	if f.Changed("refresh") {
		cfg.Watch.RefreshSeconds, _ = f.GetFloat64("refresh")
	}
	if f.Changed("throttle") {
		cfg.Watch.ThrottleSeconds, _ = f.GetFloat64("throttle")
	}
	if f.Changed("backoff") {
		cfg.Watch.BackoffSeconds, _ = f.GetFloat64("backoff")
	}
	if f.Changed("reload-time") {
		cfg.Watch.ReloadMinutes, _ = f.GetInt("reload-time")
	}
}

var rootCmd = &cobra.Command{
	Use:   "threadwatch",
	Short: "Watch imageboard threads and download new files",
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch TARGET",
	Short: "Watch a thread URL or a watch list file",
	Long: `Watch downloads every file posted in a thread and keeps polling for
new ones until the thread dies. TARGET is either a thread URL or the
path of a watch list file with one URL per line. Lines starting with
anything other than http are ignored, so threads can be disabled by
prefixing them with "-".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		target := args[0]
		if strings.HasPrefix(target, "http") {
			return a.WatchURL(cmd.Context(), target)
		}

		minutes := cfg.Watch.ReloadMinutes
		if cmd.Flags().Changed("reload") {
			if on, _ := cmd.Flags().GetBool("reload"); on {
				if minutes == 0 {
					minutes = defaultReloadMinutes
				}
			} else {
				minutes = 0
			}
		}

		return a.WatchQueue(cmd.Context(), target, time.Duration(minutes)*time.Minute)
	},
}

// dedupe command
var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Collapse duplicate files under the download root",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		kept, deleted, err := a.Dedupe(cmd.Context())
		if err != nil {
			return fmt.Errorf("deduplication failed: %w", err)
		}

		fmt.Printf("Kept %d file(s), removed %d duplicate(s)\n", kept, deleted)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["home"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Home: %s\n", defaults["home"])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "View effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		path := defaults["config_path"]
		if v, _ := cmd.Flags().GetString("config"); v != "" {
			path = v
		}

		cfg, err := config.Load(path, defaults["home"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("# %s\n\n", path)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the content-hash index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.IndexStats()
		fmt.Printf("Records: %d\n", st.Count)
		if st.Path != "" {
			fmt.Printf("Path:    %s\n", st.Path)
		}
		fmt.Printf("Schema:  %d\n", st.SchemaVersion)
		if st.Dirty {
			fmt.Println("Schema is dirty; the last migration did not finish.")
		}
		return nil
	},
}

var indexVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Drop index records whose files are gone",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, _, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		checked, missing, removed := a.IndexVerify(dryRun)
		fmt.Printf("Checked %d record(s), %d missing\n", checked, missing)
		if dryRun {
			fmt.Println("Dry run; nothing was removed.")
		} else if removed > 0 {
			fmt.Printf("Removed %d stale record(s)\n", removed)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every check, not just downloads")
	rootCmd.PersistentFlags().BoolP("date", "d", false, "Show the date in console log lines")

	watchCmd.Flags().BoolP("counter", "c", false, "Show a counter next to each downloaded file")
	watchCmd.Flags().BoolP("use-names", "n", false, "Name thread directories after the URL slug")
	watchCmd.Flags().BoolP("titles", "t", false, "Keep poster-supplied filenames")
	watchCmd.Flags().Bool("origin-names", false, "Strip the server's timestamp prefix from filenames")
	watchCmd.Flags().Bool("subjects", false, "Append the thread subject to directory names")
	watchCmd.Flags().Float64("refresh", 0, "Seconds between thread checks")
	watchCmd.Flags().Float64("throttle", 0, "Seconds between downloads within one thread")
	watchCmd.Flags().Float64("backoff", 0, "Seconds added to the throttle per rate-limit response")
	watchCmd.Flags().BoolP("reload", "r", false, "Reload the watch list periodically")
	watchCmd.Flags().Int("reload-time", 0, "Minutes between watch list reloads")

	indexVerifyCmd.Flags().Bool("dry-run", false, "Report stale records without removing them")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	// index subcommands
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexVerifyCmd)

	// root commands
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(dedupeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(indexCmd)
}
