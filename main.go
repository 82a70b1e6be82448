package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/dongled/cmd"
	"github.com/smazurov/dongled/internal/api"
	"github.com/smazurov/dongled/internal/audio"
	"github.com/smazurov/dongled/internal/capture"
	"github.com/smazurov/dongled/internal/config"
	"github.com/smazurov/dongled/internal/devices"
	"github.com/smazurov/dongled/internal/events"
	"github.com/smazurov/dongled/internal/ffmpeg"
	"github.com/smazurov/dongled/internal/led"
	"github.com/smazurov/dongled/internal/lifecycle"
	"github.com/smazurov/dongled/internal/logging"
	"github.com/smazurov/dongled/internal/metrics/exporters"
	"github.com/smazurov/dongled/internal/presentation"
	"github.com/smazurov/dongled/internal/session"
	"github.com/smazurov/dongled/internal/systemd"
	"github.com/smazurov/dongled/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port         string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	AuthUsername string `help:"Basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`
	CORSOrigin   string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Session settings
	SessionBootDelay time.Duration `help:"Grace period before binding a chosen device" default:"2500ms" toml:"session.boot_delay" env:"SESSION_BOOT_DELAY"`
	SessionHostMode  string        `help:"Device selection policy (desktop, mobile)" default:"desktop" toml:"session.host_mode" env:"SESSION_HOST_MODE"`
	SessionChooser   string        `help:"How several devices are chosen between (api, auto)" default:"api" toml:"session.chooser" env:"SESSION_CHOOSER"`

	// Preview settings
	PreviewTitle         string `help:"Preview window title" default:"Dongled" toml:"preview.title" env:"PREVIEW_TITLE"`
	PreviewRotation      int    `help:"Clockwise display rotation in degrees" default:"0" toml:"preview.rotation" env:"PREVIEW_ROTATION"`
	PreviewMirrorBuiltin bool   `help:"Mirror built-in cameras" default:"true" toml:"preview.mirror_builtin" env:"PREVIEW_MIRROR_BUILTIN"`

	// Capture settings
	CaptureInputFormat string `help:"V4L2 input format (empty lets the driver choose)" default:"" toml:"capture.input_format" env:"CAPTURE_INPUT_FORMAT"`
	CaptureResolution  string `help:"Capture resolution, e.g. 1920x1080" default:"" toml:"capture.resolution" env:"CAPTURE_RESOLUTION"`
	CaptureFPS         string `help:"Capture frame rate" default:"" toml:"capture.fps" env:"CAPTURE_FPS"`
	CaptureOptions     string `help:"Comma-separated FFmpeg option keys" default:"low_latency" toml:"capture.options" env:"CAPTURE_OPTIONS"`
	CaptureProgressDir string `help:"Directory for preview progress sockets (empty disables preview metrics)" default:"/run/dongled" toml:"capture.progress_dir" env:"CAPTURE_PROGRESS_DIR"`

	// Audio settings
	AudioEnabled    bool          `help:"Play the dongle's audio locally" default:"true" toml:"audio.enabled" env:"AUDIO_ENABLED"`
	AudioOutputRate int           `help:"Playback sample rate (0 keeps the device rate)" default:"0" toml:"audio.output_rate" env:"AUDIO_OUTPUT_RATE"`
	AudioTapTimeout time.Duration `help:"How long to wait for audible output before giving up on routing" default:"5s" toml:"audio.tap_timeout" env:"AUDIO_TAP_TIMEOUT"`
	AudioRouteSinks string        `help:"Comma-separated preferred output sink patterns (empty disables routing)" default:"bluez,headphone,headset,usb" toml:"audio.route_sinks" env:"AUDIO_ROUTE_SINKS"`

	// Features settings
	FeaturesLEDControl    bool `help:"Show session state on the board LED" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	FeaturesIdleInhibit   bool `help:"Keep the display awake while previewing" default:"true" toml:"features.idle_inhibit" env:"FEATURES_IDLE_INHIBIT"`
	FeaturesSleepTracking bool `help:"Background the session on suspend" default:"true" toml:"features.sleep_tracking" env:"FEATURES_SLEEP_TRACKING"`
	FeaturesMetrics       bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"features.metrics" env:"FEATURES_METRICS"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// [logging] module levels and [messages] live in the file only
		runtimeCfg, rtErr := config.LoadRuntime(opts.Config)
		logging.Initialize(logging.Config{
			Level:   opts.LoggingLevel,
			Format:  opts.LoggingFormat,
			Modules: runtimeCfg.Logging.Modules,
		})
		logger := logging.GetLogger("main")
		if rtErr != nil {
			logger.Warn("Using default messages", "error", rtErr)
		}
		logger.Info("Starting dongled", "version", version.String(), "config", opts.Config)

		eventBus := events.New()
		registry := devices.NewRegistry()

		captureOptions, optErr := ffmpeg.ParseOptions(splitList(opts.CaptureOptions))
		if optErr != nil {
			logger.Warn("Ignoring capture options", "error", optErr)
			captureOptions = nil
		}
		if opts.CaptureProgressDir != "" {
			if mkErr := os.MkdirAll(opts.CaptureProgressDir, 0o755); mkErr != nil {
				logger.Warn("Preview metrics disabled", "dir", opts.CaptureProgressDir, "error", mkErr)
				opts.CaptureProgressDir = ""
			}
		}
		runtime := capture.NewFFmpegRuntime(capture.Config{
			InputFormat: opts.CaptureInputFormat,
			Resolution:  opts.CaptureResolution,
			FPS:         opts.CaptureFPS,
			Options:     captureOptions,
			LogLevel:    opts.LoggingLevel,
			ProgressDir: opts.CaptureProgressDir,
		}, capture.WithExitHandler(func(graphID string, code int) {
			eventBus.Publish(events.GraphExitedEvent{GraphID: graphID, ExitCode: code, Timestamp: events.Now()})
		}))

		deps := session.Deps{Registry: registry, Runtime: runtime}

		if opts.AudioEnabled {
			var router audio.Router = audio.NoopRouter{}
			if sinks := splitList(opts.AudioRouteSinks); len(sinks) > 0 {
				router = audio.NewPactlRouter(sinks)
			}
			deps.Engine = audio.NewEngine(
				audio.WithRouter(router),
				audio.WithOutputRate(opts.AudioOutputRate),
				audio.WithTapTimeout(opts.AudioTapTimeout),
				audio.WithRouteObserver(func(r audio.RouteResult) {
					eventBus.Publish(events.AudioRouteEvent{Outcome: r.Outcome, Sink: r.Sink, Timestamp: events.Now()})
				}),
			)
		}

		// Presentation: log + bus always, chooser and idle lock per config
		observers := presentation.Fanout{
			presentation.NewLogSurface(logging.GetLogger("surface")),
			presentation.NewBusSurface(eventBus),
		}

		var pendingChooser *presentation.PendingChooser
		if opts.SessionChooser == "api" {
			pendingChooser = presentation.NewPendingChooser(eventBus)
			deps.Chooser = pendingChooser
			observers = append(observers, pendingChooser)
		} else {
			deps.Chooser = presentation.AutoChooser{}
		}

		var login *systemd.Login
		if opts.FeaturesIdleInhibit || opts.FeaturesSleepTracking {
			var loginErr error
			if login, loginErr = systemd.NewLogin(); loginErr != nil {
				logger.Warn("logind unavailable, idle inhibit and sleep tracking disabled", "error", loginErr)
			}
		}

		var idleInhibitor *presentation.IdleInhibitor
		if login != nil && opts.FeaturesIdleInhibit {
			idleInhibitor = presentation.NewIdleInhibitor(login, logging.GetLogger("surface"))
			observers = append(observers, idleInhibitor)
		}
		deps.Observer = observers

		controller := session.NewController(session.Config{
			BootDelay: opts.SessionBootDelay,
			HostMode:  session.HostMode(opts.SessionHostMode),
			Surface: capture.Surface{
				Title:         opts.PreviewTitle,
				Rotation:      opts.PreviewRotation,
				MirrorBuiltin: opts.PreviewMirrorBuiltin,
			},
			Messages: runtimeCfg.Messages,
		}, deps)

		var lifecycleOpts []lifecycle.Option
		if login != nil && opts.FeaturesSleepTracking {
			lifecycleOpts = append(lifecycleOpts, lifecycle.WithSleepSource(login))
		}
		lifecycleWatcher := lifecycle.NewWatcher(eventBus, lifecycleOpts...)

		// Initialize LED control if enabled
		var ledManager *led.Manager
		var ledController led.Controller
		if opts.FeaturesLEDControl {
			logger.Info("LED control enabled, initializing")
			var ledType string
			ledController, ledType = led.New(logger)
			if ledType != "" {
				ledManager = led.NewManager(ledController, ledType, eventBus, logger)
			}
		}

		busExporter := exporters.NewBusExporter(eventBus)

		configWatcher := config.NewConfigWatcher(opts.Config, config.LoadRuntime, logging.GetLogger("config"))
		configWatcher.OnReload(func(rt config.Runtime) {
			logging.SetLevels(rt.Logging)
			controller.SetMessages(rt.Messages)
		})

		apiOpts := &api.Options{
			AuthUsername:  opts.AuthUsername,
			AuthPassword:  opts.AuthPassword,
			CORSOrigin:    opts.CORSOrigin,
			Session:       controller,
			Registry:      registry,
			EventBus:      eventBus,
			LEDController: ledController,
		}
		if pendingChooser != nil {
			apiOpts.Chooser = pendingChooser
		}
		if ledManager != nil {
			apiOpts.LEDStatus = ledManager
		}
		if opts.FeaturesMetrics {
			apiOpts.PrometheusHandler = exporters.HTTPHandler(logging.GetLogger("metrics"))
		}
		server := api.NewServer(apiOpts)

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			go func() {
				if watchErr := registry.Watch(ctx, events.NewDeviceBroadcaster(eventBus)); watchErr != nil {
					logger.Warn("Hotplug monitoring unavailable, attach and detach go unnoticed", "error", watchErr)
				}
			}()
			go func() { _ = lifecycleWatcher.Run(ctx) }()
			busExporter.Start(ctx)

			if startErr := configWatcher.Start(); startErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", startErr)
			}
			if ledManager != nil {
				ledManager.Start()
			}

			controller.Attach(eventBus)
			controller.Start()

			if sent, notifyErr := systemd.NotifyReady(); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			} else if sent {
				logger.Debug("Notified systemd of readiness")
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = systemd.NotifyStopping()

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Tears down the graph and the audio engine
			controller.Shutdown()

			cancel()
			busExporter.Stop()
			_ = configWatcher.Stop()
			if ledManager != nil {
				ledManager.Stop()
			}
			if idleInhibitor != nil {
				idleInhibitor.Close()
			}
			if login != nil {
				login.Close()
			}
		})
	})

	cli.Root().Use = version.Name
	cli.Root().Short = "Capture dongle passthrough viewer"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreatePreviewCmd())

	cli.Run()
}
