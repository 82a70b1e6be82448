package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/dongled/internal/audio"
	"github.com/smazurov/dongled/internal/capture"
	"github.com/smazurov/dongled/internal/devices"
	"github.com/smazurov/dongled/internal/logging"
)

// CreatePreviewCmd creates the preview command.
func CreatePreviewCmd() *cobra.Command {
	var (
		title     string
		rotation  int
		noAudio   bool
		routeSink bool
		logJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "preview [unique-id]",
		Short: "Preview one capture device",
		Long: `Runs the passthrough pipeline for a single device without the session state machine: ` +
			`no permission prompts, no boot delay and no rediscovery. Exits when the pipeline ends ` +
			`or on SIGINT/SIGTERM.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("preview").With("unique_id", args[0])

			registry := devices.NewRegistry()
			video, err := lookupVideo(registry, args[0])
			if err != nil {
				return err
			}

			exited := make(chan int, 1)
			runtime := capture.NewFFmpegRuntime(capture.Config{}, capture.WithExitHandler(func(_ string, code int) {
				exited <- code
			}))
			g, err := runtime.CreateGraph()
			if err != nil {
				return fmt.Errorf("failed to create capture graph: %w", err)
			}
			defer g.Close()

			if !g.AddInput(video) {
				return fmt.Errorf("cannot add input %s", video)
			}

			var engine *audio.Engine
			var audioDevice devices.Handle
			if !noAudio {
				engine, audioDevice = bindPreviewAudio(g, registry, video, routeSink)
			}

			surface := capture.Surface{Title: title, Rotation: rotation, MirrorBuiltin: true}
			g.BindPreview(surface, runtime.RotationHint(video, surface))
			if err := g.Start(); err != nil {
				return fmt.Errorf("failed to start preview: %w", err)
			}
			logger.Info("Preview running", "device", video.Name)

			if engine != nil {
				if format, ok := g.AudioFormat(); ok {
					if err := engine.Start(audio.DeviceContext{Device: audioDevice, Format: format}); err != nil {
						logger.Warn("Previewing without sound", "error", err)
					}
				}
				defer engine.Stop()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			select {
			case <-ctx.Done():
				logger.Info("Preview stopped")
				return nil
			case code := <-exited:
				return fmt.Errorf("capture pipeline exited with code %d", code)
			}
		},
	}

	cmd.Flags().StringVar(&title, "title", "Dongled", "Preview window title")
	cmd.Flags().IntVar(&rotation, "rotation", 0, "Clockwise display rotation in degrees")
	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "Do not play the device's audio")
	cmd.Flags().BoolVar(&routeSink, "route", false, "Switch the default output to headphones once audio plays")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

var errNotVideo = errors.New("device is not a video device")

// lookupVideo finds the video device uniqueID among every connection kind.
func lookupVideo(r devices.Registry, uniqueID string) (devices.Handle, error) {
	h, err := devices.Lookup(r, uniqueID)
	if err != nil {
		return devices.Handle{}, err
	}
	if h.Media != devices.MediaVideo {
		return devices.Handle{}, fmt.Errorf("%s: %w", uniqueID, errNotVideo)
	}
	return h, nil
}

// bindPreviewAudio adds the dongle's paired audio function to g. The
// engine is nil when there is nothing to play.
func bindPreviewAudio(g capture.Graph, r devices.Registry, video devices.Handle, route bool) (*audio.Engine, devices.Handle) {
	logger := logging.GetLogger("preview")
	if r.AuthorizationStatus(devices.MediaAudio) != devices.AuthAuthorized {
		logger.Warn("Microphone access disabled, previewing without sound")
		return nil, devices.Handle{}
	}
	candidates, err := r.Enumerate(devices.MediaAudio, devices.ConnectionExternal)
	if err != nil {
		logger.Warn("Failed to enumerate audio devices", "error", err)
		return nil, devices.Handle{}
	}
	a, ok := devices.PairedAudio(video, candidates)
	if !ok || !g.AddInput(a) {
		logger.Info("No audio input for this device")
		return nil, devices.Handle{}
	}

	opts := []audio.Option{}
	if route {
		opts = append(opts, audio.WithRouter(audio.NewPactlRouter(audio.DefaultSinkPatterns)))
	}
	engine := audio.NewEngine(opts...)
	if !g.AddAudioOutput(engine.HandleSamples) {
		g.RemoveAllInputs()
		g.AddInput(video)
		return nil, devices.Handle{}
	}
	return engine, a
}
