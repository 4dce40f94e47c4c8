package commands

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bryanchriswhite/wscommon/internal/api"
	"github.com/bryanchriswhite/wscommon/internal/config"
	"github.com/bryanchriswhite/wscommon/internal/logger"
	"github.com/bryanchriswhite/wscommon/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open a window and wait until it is closed",
	Long: `Open one top-level window, show it, and process events until the window
manager asks it to close or the display connection goes away.`,
	Example: `  # Open the default 640x480 "Test" window
  wscommon run

  # Open a borderless 800x600 window on display :1
  wscommon run --display :1 --width 800 --height 600 --override-redirect

  # Serve the inspect API while the window is open
  wscommon run --inspect --port 9090`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.String("backend", "", "windowing backend (auto, x11, win32)")
	f.Int("width", 0, "window width")
	f.Int("height", 0, "window height")
	f.String("title", "", "window title")
	f.String("background", "", "background colour (name, #rrggbb or #aarrggbb)")
	f.Bool("override-redirect", false, "bypass the window manager (x11)")
	f.Bool("no-content", false, "create the window without a redirection bitmap (win32)")
	f.Bool("inspect", false, "serve the inspect API while running")
	f.Int("port", 0, "inspect API port")

	for key, flag := range map[string]string{
		"backend":                  "backend",
		"window.width":             "width",
		"window.height":            "height",
		"window.title":             "title",
		"window.background":        "background",
		"window.override_redirect": "override-redirect",
		"window.no_content":        "no-content",
		"inspect.enabled":          "inspect",
		"inspect.port":             "port",
	} {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	// X11 and Win32 both expect every call on the UI thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := logger.WithComponent("cli")

	cfg := effectiveConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	background, _ := config.ParseColor(cfg.Window.Background)
	border, _ := config.ParseColor(cfg.Window.Border)

	backend, err := window.New(cfg.Backend, window.Options{
		Display:          cfg.Display,
		Screen:           cfg.Screen,
		Background:       background,
		Border:           border,
		OverrideRedirect: cfg.Window.OverrideRedirect,
		NoContent:        cfg.Window.NoContent,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", cfg.Backend, err)
	}
	defer backend.Close()

	w, err := backend.NewWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title)
	if err != nil {
		return err
	}
	if err := w.Show(); err != nil {
		return fmt.Errorf("failed to show window: %w", err)
	}

	width, height, err := w.ClientSize()
	if err != nil {
		return err
	}
	log.Info().
		Str("backend", backend.Name()).
		Str("title", cfg.Window.Title).
		Int("width", width).
		Int("height", height).
		Msg("Window open")

	if cfg.Inspect.Enabled {
		xb, ok := backend.(*window.X11Backend)
		if !ok {
			log.Warn().Str("backend", backend.Name()).Msg("Inspect API needs the x11 backend")
		} else {
			inspect := api.NewServer(xb.Server(), configMgr)
			go func() {
				if err := inspect.Start(cfg.Inspect.Port); err != nil {
					log.Error().Err(err).Msg("Inspect API stopped")
				}
			}()
			defer inspect.Stop(2 * time.Second)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")
		backend.Close()
	}()

	reason := backend.ProcessEvents()
	log.Info().Str("reason", reason.String()).Msg("Event loop finished")
	return nil
}
