package camerad

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/camerad/internal/api"
	"github.com/nerrad567/camerad/internal/camera"
	"github.com/nerrad567/camerad/internal/events"
	"github.com/nerrad567/camerad/internal/framebuf"
	"github.com/nerrad567/camerad/internal/hwsim"
	"github.com/nerrad567/camerad/internal/infrastructure/config"
	"github.com/nerrad567/camerad/internal/infrastructure/database"
	"github.com/nerrad567/camerad/internal/infrastructure/influxdb"
	"github.com/nerrad567/camerad/internal/infrastructure/logging"
	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
	"github.com/nerrad567/camerad/internal/lifecycle"
	"github.com/nerrad567/camerad/internal/override"
	"github.com/nerrad567/camerad/internal/publish"
	"github.com/nerrad567/camerad/internal/sensor"
)

// ErrInvalidOptions is returned by New when a required dependency is missing.
var ErrInvalidOptions = errors.New("camerad: invalid options")

// MQTTClient is the broker surface the daemon uses. *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Options holds the daemon's dependencies.
type Options struct {
	Config *config.Config
	Logger *logging.Logger
	DB     *database.DB

	// MQTT is optional with the simulated source and required for v4l2.
	MQTT     MQTTClient
	InfluxDB *influxdb.Client // optional

	Version string

	// DebugOut receives the per-event trace when camerad.debug_frames is set.
	DebugOut io.Writer
}

// Daemon is the assembled camera daemon.
type Daemon struct {
	cfg    *config.Config
	logger *logging.Logger
	exit   *lifecycle.ExitFlag

	source      events.Source
	rig         *hwsim.Rig
	controllers []*camera.Controller
	dispatcher  *events.Dispatcher

	params *override.Store
	hub    *api.Hub
	losses *publish.LossRecorder
	status *publish.StatusReporter
	api    *api.Server
}

// New builds every component of the daemon without starting any of them.
// It loads the parameter cache and, when MQTT is present, subscribes to
// parameter and ISP completion topics.
//
// Parameters:
//   - ctx: Context for database access and MQTT handlers
//   - opts: Dependencies; Config, Logger and DB are required
//
// Returns:
//   - *Daemon: Ready to Run
//   - error: ErrInvalidOptions, or the first construction failure
func New(ctx context.Context, opts Options) (*Daemon, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	cfg := opts.Config
	log := opts.Logger

	d := &Daemon{
		cfg:    cfg,
		logger: log,
		exit:   lifecycle.NewExitFlag(),
	}

	cals, err := loadCalibrations(cfg.Camerad.CalibrationFile)
	if err != nil {
		return nil, err
	}

	// Interfaces stay nil when the concrete client is absent.
	var pub publish.MQTTPublisher
	if opts.MQTT != nil {
		pub = opts.MQTT
	}
	var telemetry publish.TelemetryWriter
	if opts.InfluxDB != nil {
		telemetry = opts.InfluxDB
	}

	d.params = override.NewStore(override.NewSQLiteRepository(opts.DB.DB))
	d.params.SetLogger(log.With("component", "params"))
	if err := d.params.RefreshCache(ctx); err != nil {
		return nil, fmt.Errorf("loading params: %w", err)
	}
	if opts.MQTT != nil {
		if err := d.params.Subscribe(ctx, opts.MQTT); err != nil {
			return nil, fmt.Errorf("subscribing to params: %w", err)
		}
	}

	d.hub = api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	d.hub.AllowChannels(publish.ChannelFrame, publish.ChannelThumbnail, publish.ChannelLoss, publish.ChannelStatus)

	var rawFrames *publish.RawFrameWriter
	if cfg.Camerad.LogRawFrames {
		rawFrames, err = publish.NewRawFrameWriter(cfg.Camerad.RawFrameDir)
		if err != nil {
			return nil, err
		}
	}
	fanout := publish.NewFanout(publish.FanoutOptions{
		MQTT:      pub,
		Hub:       d.hub,
		Telemetry: telemetry,
		RawFrames: rawFrames,
		Logger:    log.With("component", "publish"),
	})

	lossRepo := publish.NewSQLiteLossRepository(opts.DB.DB)
	d.losses = publish.NewLossRecorder(publish.LossRecorderOptions{
		Repo:      lossRepo,
		MQTT:      pub,
		Hub:       d.hub,
		Telemetry: telemetry,
		Logger:    log.With("component", "losses"),
	})

	if err := d.openSource(); err != nil {
		return nil, err
	}
	built := false
	defer func() {
		if !built {
			d.source.Close() //nolint:errcheck // construction already failed
		}
	}()

	registers := d.registerTransport(pub)
	for _, cc := range cfg.Cameras {
		ctrl, err := d.buildCamera(cc, cals, cameraDeps{
			mqtt:      opts.MQTT,
			pub:       pub,
			registers: registers,
			params:    d.params,
			publisher: fanout,
		})
		if err != nil {
			return nil, err
		}
		d.controllers = append(d.controllers, ctrl)
	}

	handlers := make([]events.Handler, 0, len(d.controllers))
	sources := make([]publish.StatusSource, 0, len(d.controllers))
	cameras := make([]api.CameraSource, 0, len(d.controllers))
	for _, c := range d.controllers {
		if c.Enabled() {
			handlers = append(handlers, c)
		}
		sources = append(sources, c)
		cameras = append(cameras, c)
	}

	d.dispatcher = events.NewDispatcher(events.DispatcherOptions{
		Source:      d.source,
		Handlers:    handlers,
		Exit:        d.exit,
		PollTimeout: cfg.Camerad.PollTimeout(),
		DebugFrames: cfg.Camerad.DebugFrames,
		DebugOut:    opts.DebugOut,
		Logger:      log.With("component", "dispatch"),
	})

	d.status = publish.NewStatusReporter(publish.StatusReporterOptions{
		Sources:  sources,
		MQTT:     pub,
		Hub:      d.hub,
		Logger:   log.With("component", "status"),
		Interval: cfg.Camerad.StatusPeriod(),
	})

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.With("component", "api"),
			Cameras:     cameras,
			Params:      d.params,
			Losses:      lossRepo,
			DB:          opts.DB,
			ExternalHub: d.hub,
			Version:     opts.Version,
		}
		if opts.MQTT != nil {
			deps.MQTT = opts.MQTT
		}
		if opts.InfluxDB != nil {
			deps.InfluxDB = opts.InfluxDB
		}
		if d.api, err = api.New(deps); err != nil {
			return nil, fmt.Errorf("creating API server: %w", err)
		}
	}

	built = true
	return d, nil
}

func validateOptions(opts Options) error {
	switch {
	case opts.Config == nil:
		return fmt.Errorf("%w: config is required", ErrInvalidOptions)
	case opts.Logger == nil:
		return fmt.Errorf("%w: logger is required", ErrInvalidOptions)
	case opts.DB == nil:
		return fmt.Errorf("%w: database is required", ErrInvalidOptions)
	case opts.Config.Camerad.Source == config.SourceV4L2 && opts.MQTT == nil:
		return fmt.Errorf("%w: the v4l2 source needs MQTT for buffer requests", ErrInvalidOptions)
	}
	return nil
}

func loadCalibrations(path string) (sensor.Calibrations, error) {
	if path == "" {
		return sensor.DefaultCalibrations()
	}
	cals, err := sensor.LoadCalibrations(path)
	if err != nil {
		return nil, fmt.Errorf("loading calibrations: %w", err)
	}
	return cals, nil
}

// openSource opens the configured notification source.
func (d *Daemon) openSource() error {
	switch d.cfg.Camerad.Source {
	case config.SourceV4L2:
		src, err := events.OpenV4L2(d.cfg.Camerad.VideoDevice)
		if err != nil {
			return err
		}
		d.source = src
	default:
		sim := d.cfg.Simulation
		d.rig = hwsim.New(hwsim.Options{
			FrameRate:  sim.FrameRateHz,
			SceneLuma:  sim.SceneLuma,
			SkipEvery:  sim.SkipEvery,
			DropEvery:  sim.DropEvery,
			StallAfter: sim.StallAfter,
			Now:        events.NanosSinceBoot,
		})
		d.source = d.rig
	}
	return nil
}

// registerTransport returns where sensor register writes go: the rig,
// mirrored to MQTT, in simulation and MQTT alone on hardware.
func (d *Daemon) registerTransport(pub publish.MQTTPublisher) camera.RegisterTransport {
	var mirror camera.RegisterTransport
	if pub != nil {
		mirror = publish.NewMQTTRegisterTransport(pub)
	}
	if d.rig == nil {
		return mirror
	}
	if mirror == nil {
		return d.rig
	}
	return publish.NewRegisterTee(d.logger.With("component", "registers"), d.rig, mirror)
}

type cameraDeps struct {
	mqtt      MQTTClient
	pub       publish.MQTTPublisher
	registers camera.RegisterTransport
	params    camera.OverrideStore
	publisher camera.Publisher
}

// buildCamera creates one controller and attaches it to the source.
func (d *Daemon) buildCamera(cc config.CameraConfig, cals sensor.Calibrations, deps cameraDeps) (*camera.Controller, error) {
	s, err := cals.New(cc.Sensor)
	if err != nil {
		return nil, fmt.Errorf("camera %d: %w", cc.Index, err)
	}
	role := camera.Role(cc.Role)
	log := d.logger.ForCamera(cc.Index, role.StreamName())

	opts := camera.Options{
		Index:              cc.Index,
		Role:               role,
		Sensor:             s,
		FocalLengthMM:      cc.FocalLengthMM,
		Width:              cc.Width,
		Height:             cc.Height,
		Enabled:            cc.Enabled,
		SessionHandle:      cc.SessionHandle,
		LinkHandle:         cc.LinkHandle,
		LowGainGuardTime:   d.cfg.Camerad.LowGainGuardTime,
		ExposureGuard:      d.cfg.Camerad.ExposureGuard(),
		AcquireTimeout:     d.cfg.Camerad.AcquireTimeout(),
		FrameDecimation:    d.cfg.Camerad.FrameDecimation,
		ExposureFromParams: d.cfg.Camerad.ExposureFromParams,
		LogRawFrames:       d.cfg.Camerad.LogRawFrames,
		Registers:          deps.registers,
		Overrides:          deps.params,
		Publisher:          deps.publisher,
		Losses:             d.losses,
		Logger:             log,
		Now:                events.NanosSinceBoot,
	}

	var simCam *hwsim.Camera
	if cc.Enabled {
		store := framebuf.New(d.cfg.Camerad.BufferDepth, cc.Width, cc.Height, framebuf.WithClock(events.NanosSinceBoot))
		opts.Buffers = store

		if d.rig != nil {
			simCam = d.rig.AddCamera(hwsim.CameraOptions{
				Index:         cc.Index,
				SessionHandle: cc.SessionHandle,
				LinkHandle:    cc.LinkHandle,
				Store:         store,
			})
			opts.Requests = simCam
		} else {
			opts.Requests = publish.NewMQTTRequestManager(deps.pub, cc.Index, log)
			if err := publish.SubscribeCompletions(deps.mqtt, cc.Index, store); err != nil {
				return nil, fmt.Errorf("camera %d: subscribing to ISP completions: %w", cc.Index, err)
			}
		}
	}

	ctrl, err := camera.New(opts)
	if err != nil {
		return nil, err
	}
	if simCam != nil {
		simCam.SetExposureProbe(ctrl.CurrentEV)
	}

	log.Info("camera configured",
		"role", role,
		"sensor", s.Model(),
		"enabled", cc.Enabled,
		"session", fmt.Sprintf("%#x", cc.SessionHandle),
		"ae_rect", ctrl.AERect(),
	)
	return ctrl, nil
}

// Run starts the services, primes every enabled camera and runs the
// dispatch loop and one publisher loop per camera until the exit flag is
// raised or ctx is cancelled. Services are stopped and the source closed
// before it returns.
//
// Returns:
//   - error: The dispatch loop's failure, or nil on a requested shutdown
func (d *Daemon) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopWatch := d.exit.SetOnCancel(runCtx)
	defer stopWatch()

	go d.hub.Run(runCtx)
	d.losses.Start(runCtx)
	d.status.Start(runCtx)
	if d.api != nil {
		if err := d.api.Start(runCtx); err != nil {
			d.shutdown()
			return fmt.Errorf("starting API server: %w", err)
		}
	}

	enabled := 0
	for _, c := range d.controllers {
		if c.Enabled() {
			c.Prime()
			enabled++
		}
	}
	d.logger.Info("camera daemon running", "source", d.cfg.Camerad.Source, "cameras", enabled)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return d.dispatcher.Run(gctx)
	})
	for _, c := range d.controllers {
		g.Go(func() error {
			return c.Run(gctx, d.exit)
		})
	}
	err := g.Wait()
	d.exit.Set()

	d.shutdown()
	return err
}

// shutdown stops the services in reverse start order.
func (d *Daemon) shutdown() {
	if d.api != nil {
		if err := d.api.Close(); err != nil {
			d.logger.Error("error closing API server", "error", err)
		}
	}
	d.status.Stop()
	d.losses.Stop()
	if dropped := d.losses.Dropped(); dropped > 0 {
		d.logger.Warn("frame-loss events dropped", "count", dropped)
	}
	if err := d.source.Close(); err != nil {
		d.logger.Error("error closing event source", "error", err)
	}
	for _, c := range d.controllers {
		st := c.Status()
		d.logger.Info("camera stopped",
			"camera", st.Index,
			"frames", st.FramesPublished,
			"stalls", st.Stalls,
			"skips", st.Skips,
			"drops", st.Drops,
		)
	}
}

// Exit returns the daemon's shutdown flag.
func (d *Daemon) Exit() *lifecycle.ExitFlag { return d.exit }

// Controllers returns the camera controllers in configuration order.
func (d *Daemon) Controllers() []*camera.Controller { return d.controllers }

// Params returns the debug-override parameter store.
func (d *Daemon) Params() *override.Store { return d.params }

// Hub returns the WebSocket hub frames and losses are broadcast on.
func (d *Daemon) Hub() *api.Hub { return d.hub }

// Rig returns the simulated hardware, or nil with the v4l2 source.
func (d *Daemon) Rig() *hwsim.Rig { return d.rig }
