package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/lumencore/lumencore/internal/fabric"
	"github.com/lumencore/lumencore/internal/metrics"
	"github.com/lumencore/lumencore/internal/mixer"
	"github.com/lumencore/lumencore/internal/output"
	"github.com/lumencore/lumencore/internal/patcher"
	"github.com/lumencore/lumencore/internal/persistence"
	"github.com/lumencore/lumencore/internal/rpc"
	"github.com/lumencore/lumencore/pkg/logging"
)

// Config holds every wiring-layer flag shared by the run and tsexport
// subcommands.
type Config struct {
	ShowPath          string
	LibraryCachePath  string
	ListenAddr        string
	MetricsNamespace  string
	EnableE131        bool
	E131SourceName    string
	OpenDMXPort       string
}

// Core is every long-lived component the wiring layer composes, generalizing
// the teacher's flat main()-local variable set (store/aggStore/ep/eb/
// pluginManager in cmd/mindpalace/main.go) into a named, reusable struct so
// both `run` and `tsexport` can build the same graph without duplicating it.
type Core struct {
	cfg Config

	Fabric    *fabric.Fabric
	Library   *patcher.Library
	Patcher   *patcher.Patcher
	Universes *output.UniverseRegistry
	DMX       *output.DMXDriver
	Mixer     *mixer.Mixer
	Loop      *mixer.Loop
	Store     *persistence.Store

	MetricsRegistry metrics.Registry
	RenderMetrics   *metrics.RenderMetrics

	E131    *output.E131Controller
	OpenDMX *output.OpenDMXController

	WebSocket *rpc.WebSocketServer
}

// buildCore wires every component spec.md §2's architecture table lists,
// in dependency order (leaves first): fabric, then patcher/library, then
// output drivers/controllers the patcher's driver map references, then the
// mixer and its render loop, then persistence, then the RPC transport.
func buildCore(cfg Config) (*Core, error) {
	c := &Core{cfg: cfg, Fabric: fabric.New()}

	lib, err := patcher.NewLibrary(cfg.LibraryCachePath)
	if err != nil {
		return nil, fmt.Errorf("building fixture library: %w", err)
	}
	c.Library = lib

	c.Patcher = patcher.NewPatcher(lib, c.Fabric.Events)
	c.Universes = output.NewUniverseRegistry()
	c.DMX = output.NewDMXDriver(c.Patcher, c.Universes, c.Fabric.Events)
	c.Patcher.RegisterDriver(c.DMX)
	dmxPatchCh, _ := c.Fabric.Events.SubscribeTyped(patcher.EventPatchUpdated, fabric.NoCriteria, 32)
	go func() {
		for d := range dmxPatchCh {
			if d.Shutdown {
				return
			}
			c.DMX.Refresh()
		}
	}()

	if cfg.EnableE131 {
		cid := uuid.New()
		var cidBytes [16]byte
		copy(cidBytes[:], cid[:])
		c.E131 = output.NewE131Controller(cidBytes, cfg.E131SourceName)
		c.Universes.RegisterController(c.E131)
	}
	if cfg.OpenDMXPort != "" {
		c.OpenDMX = output.NewOpenDMXController(cfg.OpenDMXPort)
		c.Universes.RegisterController(c.OpenDMX)
	}

	c.MetricsRegistry = metrics.NewRegistry()
	renderMetrics, err := metrics.NewRenderMetrics(cfg.MetricsNamespace, c.MetricsRegistry)
	if err != nil {
		return nil, fmt.Errorf("registering render metrics: %w", err)
	}
	c.RenderMetrics = renderMetrics

	c.Mixer = mixer.NewMixer(c.Fabric.Events)
	c.Loop = mixer.NewLoop(c.Mixer, c.Patcher, c.Fabric.Events, c.RenderMetrics)

	c.Store = persistence.NewStore()
	c.Store.Register("patcher", c.Patcher)
	c.Store.Register("mixer", c.Mixer)
	c.Store.Register("output", c.Universes)

	if err := mixer.RegisterServices(c.Fabric, c.Mixer); err != nil {
		return nil, fmt.Errorf("registering mixer services: %w", err)
	}
	if err := patcher.RegisterServices(c.Fabric, c.Patcher, lib); err != nil {
		return nil, fmt.Errorf("registering patcher services: %w", err)
	}
	if err := output.RegisterServices(c.Fabric, c.Universes); err != nil {
		return nil, fmt.Errorf("registering output services: %w", err)
	}

	c.WebSocket = rpc.NewWebSocketServer(c.Fabric)

	return c, nil
}

// LoadShow reads the show file at cfg.ShowPath, if it exists, dispatching
// each plugin's slice to its registered Savable (spec §4.5). A missing file
// is not an error: the core simply starts with an empty show.
func (c *Core) LoadShow() error {
	if _, err := os.Stat(c.cfg.ShowPath); err != nil {
		logging.Info("wiring: no show file at %q, starting empty", c.cfg.ShowPath)
		return nil
	}
	if err := c.Store.LoadFile(c.cfg.ShowPath); err != nil {
		return fmt.Errorf("loading show file %q: %w", c.cfg.ShowPath, err)
	}
	c.Store.FinishInitialization()
	if c.Store.FinishedUnsafe() {
		logging.Error("wiring: show file %q left unrecognized plugin data; refusing further saves", c.cfg.ShowPath)
	}
	return nil
}

// SaveShow writes the current show to cfg.ShowPath, refusing when the last
// load was finished-unsafe (spec §4.5 "the application is expected to
// refuse further saves to prevent data loss").
func (c *Core) SaveShow() error {
	if c.Store.FinishedUnsafe() {
		return fmt.Errorf("wiring: refusing to save %q: last load left unrecognized plugin data", c.cfg.ShowPath)
	}
	return c.Store.SaveFile(c.cfg.ShowPath)
}

// Shutdown stops every background loop and releases driver resources, in
// roughly reverse dependency order.
func (c *Core) Shutdown() {
	c.Fabric.Shutdown.Shutdown()
	if c.E131 != nil {
		c.E131.Close()
	}
	if c.OpenDMX != nil {
		c.OpenDMX.Close()
	}
	if err := c.Library.Close(); err != nil {
		logging.Error("wiring: closing fixture library cache: %v", err)
	}
}
