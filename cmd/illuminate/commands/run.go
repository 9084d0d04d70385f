package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/bryanchriswhite/illuminate/internal/api"
	"github.com/bryanchriswhite/illuminate/internal/capture"
	"github.com/bryanchriswhite/illuminate/internal/config"
	"github.com/bryanchriswhite/illuminate/internal/control"
	"github.com/bryanchriswhite/illuminate/internal/display"
	"github.com/bryanchriswhite/illuminate/internal/engine"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/bryanchriswhite/illuminate/internal/output"
	"github.com/bryanchriswhite/illuminate/internal/settings"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the installation",
	Long: `Start capturing, compositing and projecting.

The composite is shown in a full-screen window (X11 or Ebitengine). Effect
parameters are controlled over OSC, the HTTP API or the browser preview.
Press Escape in the window, send /1/quit or hit Ctrl+C to stop.`,
	Example: `  # Run with the defaults from the config file
  illuminate run

  # Listen for OSC on another port and use the Ebitengine window
  illuminate run --osc-port 9000 --display ebiten

  # Headless with a browser preview and the built-in test pattern
  illuminate run --display none --mjpeg --test-pattern --select 0

  # Keep saved settings somewhere else
  illuminate run --settings /srv/illuminate/settings.yaml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("osc-port", 0, "OSC listen port (default 8000)")
	runCmd.Flags().Int("port", 0, "HTTP server port (default 8080)")
	runCmd.Flags().String("display", "", "display backend (x11, ebiten or none)")
	runCmd.Flags().Bool("mjpeg", false, "serve the MJPEG browser preview")
	runCmd.Flags().String("settings", "", "settings file used by /1/save and /1/load")
	runCmd.Flags().String("capture-backend", "", "capture backend (gst, subprocess or pattern)")
	runCmd.Flags().Bool("test-pattern", false, "list the built-in test pattern as a source")
	runCmd.Flags().Int("select", -1, "source index to start at launch")

	viper.BindPFlag("osc_port", runCmd.Flags().Lookup("osc-port"))
	viper.BindPFlag("server_port", runCmd.Flags().Lookup("port"))
	viper.BindPFlag("display", runCmd.Flags().Lookup("display"))
	viper.BindPFlag("mjpeg", runCmd.Flags().Lookup("mjpeg"))
	viper.BindPFlag("settings", runCmd.Flags().Lookup("settings"))
	viper.BindPFlag("capture_backend", runCmd.Flags().Lookup("capture-backend"))
	viper.BindPFlag("test_pattern", runCmd.Flags().Lookup("test-pattern"))
	viper.BindPFlag("select", runCmd.Flags().Lookup("select"))
}

// applyRunFlags overrides cfg with the flags that were given.
func applyRunFlags(cfg *config.Config) error {
	if viper.IsSet("osc_port") {
		if port := viper.GetInt("osc_port"); port > 0 {
			cfg.OSC.Port = port
		}
	}
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			cfg.Server.Port = port
		}
	}
	if viper.IsSet("display") {
		if d := viper.GetString("display"); d != "" {
			cfg.Display.Backend = d
		}
	}
	if viper.IsSet("mjpeg") {
		cfg.MJPEG.Enabled = viper.GetBool("mjpeg")
	}
	if viper.IsSet("settings") {
		if p := viper.GetString("settings"); p != "" {
			cfg.SettingsPath = p
		}
	}
	if viper.IsSet("capture_backend") {
		if b := viper.GetString("capture_backend"); b != "" {
			cfg.Capture.Backend = b
		}
	}
	if viper.IsSet("test_pattern") {
		cfg.Capture.TestPattern = viper.GetBool("test_pattern")
	}
	if viper.IsSet("select") {
		cfg.Capture.AutoSelect = viper.GetInt("select")
	}
	return cfg.Validate()
}

// newCatalog builds the device catalog described by cfg.
func newCatalog(cfg *config.Config) (*capture.Catalog, capture.Opener, error) {
	backend, err := capture.ParseBackend(cfg.Capture.Backend)
	if err != nil {
		return nil, nil, err
	}
	mode, err := capture.ParseEnumerateMode(cfg.Capture.Enumerate)
	if err != nil {
		return nil, nil, err
	}
	resolutions, err := cfg.ParsedResolutions()
	if err != nil {
		return nil, nil, err
	}

	open := capture.NewOpener(backend, cfg.Capture.FPS)
	var prober capture.Prober
	if mode == capture.EnumerateProbe {
		prober = capture.StreamProber{Open: open}
	}

	enumerator := capture.NewEnumerator(backend, cfg.Capture.TestPattern)
	return capture.NewCatalog(enumerator, prober, mode, resolutions), open, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}

	log := logger.WithComponent("main")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("display", cfg.Display.Backend).
		Str("capture", cfg.Capture.Backend).
		Msg("Starting Illuminate")

	catalog, open, err := newCatalog(cfg)
	if err != nil {
		return err
	}
	if _, err := catalog.Enumerate(); err != nil {
		log.Warn().Err(err).Msg("Device enumeration failed, use /1/rescan to retry")
	}

	settingsPath := cfg.SettingsPath
	if settingsPath == "" {
		settingsPath = settings.DefaultPath()
	}
	workers := cfg.Compositor.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	queue := control.NewQueue(0)
	eng, err := engine.New(engine.Options{
		Session:  capture.NewSession(catalog, open),
		Queue:    queue,
		Store:    settings.NewStore(settingsPath),
		Workers:  workers,
		TickRate: cfg.Display.FPS,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-eng.Done()
		cancel()
	}()

	var mjpeg *output.MJPEGOutput
	if cfg.MJPEG.Enabled {
		mjpegCfg := output.MJPEGConfig{
			Config: output.Config{
				Width:  cfg.MJPEG.Width,
				Height: cfg.MJPEG.Height,
				FPS:    cfg.MJPEG.FPS,
			},
			Quality: cfg.MJPEG.Quality,
		}
		if cfg.MJPEG.HUD {
			mjpegCfg.HUD = func() []string { return hudLines(eng.Status()) }
		}
		mjpeg = output.NewMJPEGOutput(mjpegCfg)
		if err := mjpeg.Start(); err != nil {
			return fmt.Errorf("failed to start MJPEG output: %w", err)
		}
		defer mjpeg.Stop()
		eng.AddSink(mjpeg)
	}

	if cfg.OSC.Enabled {
		addr := net.JoinHostPort(cfg.OSC.Host, strconv.Itoa(cfg.OSC.Port))
		listener := control.NewListener(addr, queue)
		if err := listener.Listen(); err != nil {
			return err
		}
		go func() {
			if err := listener.ListenAndServe(ctx); err != nil {
				log.Error().Err(err).Msg("OSC listener failed")
			}
		}()
	}

	if cfg.Server.Enabled {
		server := api.NewServer(eng, configMgr, mjpeg)
		go func() {
			if err := server.Start(ctx, cfg.Server.Port); err != nil {
				log.Error().Err(err).Msg("HTTP server failed")
			}
		}()
		log.Info().Msgf("Control page: http://localhost:%d", cfg.Server.Port)
	}

	if cfg.Capture.AutoSelect >= 0 {
		eng.Submit(control.Message{
			Address: "/1/camera",
			Args:    []interface{}{int32(cfg.Capture.AutoSelect)},
			Source:  "cli",
		})
	}

	if cfg.Display.Backend != "none" && cfg.Display.InhibitScreensaver {
		inhibitor, err := display.NewScreenSaverInhibitor()
		if err != nil {
			log.Warn().Err(err).Msg("Cannot inhibit screensaver")
		} else {
			if err := inhibitor.Inhibit("illuminate", "live installation running"); err != nil {
				log.Warn().Err(err).Msg("Cannot inhibit screensaver")
			}
			defer inhibitor.Close()
		}
	}

	winCfg := display.Config{
		Width:      cfg.Display.Width,
		Height:     cfg.Display.Height,
		Fullscreen: cfg.Display.Width == 0 || cfg.Display.Height == 0,
	}

	switch cfg.Display.Backend {
	case "ebiten":
		win := display.NewEbitenWindow(winCfg, eng.Tick)
		win.OnQuit(eng.Quit)
		eng.AddSink(win)
		go func() {
			<-ctx.Done()
			win.RequestQuit()
		}()
		err := win.Run()
		eng.Shutdown()
		return err

	case "x11":
		win, err := display.NewX11Window(winCfg)
		if err != nil {
			return err
		}
		win.OnQuit(eng.Quit)
		if err := win.Start(); err != nil {
			return fmt.Errorf("failed to start display: %w", err)
		}
		defer win.Stop()
		eng.AddSink(win)
	}

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Shut down")
	return nil
}

// hudLines is the readout drawn over the browser preview.
func hudLines(st engine.Status) []string {
	camera := "no camera"
	if st.Camera != nil {
		camera = st.Camera.Label()
	}
	p := st.Params
	return []string{
		fmt.Sprintf("%s [%s]", camera, st.State),
		fmt.Sprintf("zoom %.0f  skew %.1f  move %.0f,%.0f", p.Zoom, p.Skew, p.MoveL2R, p.MoveT2B),
		fmt.Sprintf("trail %v %.2f  skip %d  mix %.2f", p.BlurOn, p.Feedback, p.FrameSkip, p.NewFrameMix),
		fmt.Sprintf("hue %v  speed %.2f  pos %.3f", p.HueRotOn, p.HueRotSpeed, st.HuePosition),
	}
}
