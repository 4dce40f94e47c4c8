package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/wscommon/internal/config"
	"github.com/bryanchriswhite/wscommon/internal/logger"
	"github.com/bryanchriswhite/wscommon/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	pretty    bool
	configMgr *config.Manager

	rootCmd = &cobra.Command{
		Use:   "wscommon",
		Short: "wscommon - native windows for a graphics layer",
		Long: `wscommon opens native top-level windows that a graphics layer can
present into.

On X11 it connects once per process, picks a 32-bit TrueColor visual with
its own colormap and watches for the window manager's delete-window
request. On Windows it registers a window class and pumps the message
queue until WM_QUIT.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			server.Shutdown()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/wscommon/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "human-readable log output")
	rootCmd.PersistentFlags().String("display", "", "X display to connect to (default is $DISPLAY)")
	rootCmd.PersistentFlags().Int("screen", -1, "X screen number (default is the display's default screen)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("display", rootCmd.PersistentFlags().Lookup("display"))
	viper.BindPFlag("screen", rootCmd.PersistentFlags().Lookup("screen"))
}

func setup(cmd *cobra.Command, args []string) error {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configMgr = mgr

	logger.Init(effectiveConfig().LogLevel, pretty)
	return nil
}

// effectiveConfig is the stored configuration with command-line flags
// applied on top. Flags are never written back to the file.
func effectiveConfig() *config.Config {
	cfg := configMgr.Get()
	for _, key := range config.Keys() {
		if !viper.IsSet(key) {
			continue
		}
		if err := cfg.Apply(key, viper.GetString(key)); err != nil {
			logger.WithComponent("cli").Warn().Err(err).Str("key", key).Msg("Ignoring flag")
		}
	}
	return cfg
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
