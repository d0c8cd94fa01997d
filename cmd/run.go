// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/VVelox/meer/internal/api"
	"github.com/VVelox/meer/internal/brand"
	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/config"
	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/decode"
	"github.com/VVelox/meer/internal/fingerprint"
	"github.com/VVelox/meer/internal/geoip"
	"github.com/VVelox/meer/internal/health"
	"github.com/VVelox/meer/internal/input"
	"github.com/VVelox/meer/internal/install"
	"github.com/VVelox/meer/internal/iprange"
	"github.com/VVelox/meer/internal/logging"
	"github.com/VVelox/meer/internal/ndp"
	"github.com/VVelox/meer/internal/pipeline"
	"github.com/VVelox/meer/internal/revdns"
	"github.com/VVelox/meer/internal/sinks"
	"github.com/VVelox/meer/internal/stats"
)

// redisPingTimeout bounds the startup connectivity check.
const redisPingTimeout = 5 * time.Second

// source is either the spool follower or the datagram socket.
type source interface {
	Run(ctx context.Context) error
}

// RunDaemon runs the bridge in the foreground until SIGINT or SIGTERM.
// Everything privileged is opened before the optional runas drop.
func RunDaemon(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logOut, err := buildLogger(cfg.Core)
	if err != nil {
		return err
	}
	if logOut != nil {
		defer logOut.Close()
	}
	logging.SetDefault(logger)

	if err := SetProcessName(brand.LowerName); err != nil {
		logger.Debug("could not set process name", "error", err)
	}

	pidFile := install.PIDFile()
	if err := writePIDFile(pidFile); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	logger.Info("starting",
		"name", brand.LowerName,
		"version", brand.Version,
		"config", configFile,
		"input", cfg.Input.Type,
		"hostname", cfg.Core.Hostname)

	clk := &clock.RealClock{}
	ctr := counters.New()

	var classes map[string]config.Classification
	if cfg.Core.Classifications != "" {
		classes, err = config.LoadClassifications(cfg.Core.Classifications)
		if err != nil {
			return fmt.Errorf("classifications: %w", err)
		}
		logger.Info("loaded classifications", "path", cfg.Core.Classifications, "count", len(classes))
	}

	var geo *geoip.DB
	if cfg.GeoIP != nil && cfg.GeoIP.Enabled {
		geo, err = geoip.Open(cfg.GeoIP.Database)
		if err != nil {
			return fmt.Errorf("geoip: %w", err)
		}
		defer geo.Close()
	}

	var resolver *revdns.Resolver
	if cfg.DNS != nil && cfg.DNS.Enabled {
		resolver = revdns.New(revdns.Config{
			Server:   cfg.DNS.Server,
			CacheTTL: cfg.DNS.CacheTTLDuration(),
		}, logger)
	}

	var rdb *redis.Client
	if cfg.Redis != nil && cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Redis.Addr(), err)
		}
	}

	var store *fingerprint.Store
	var interest iprange.Set
	if cfg.Fingerprint != nil && cfg.Fingerprint.Enabled {
		interest, err = iprange.ParseSet(cfg.Fingerprint.Networks)
		if err != nil {
			return fmt.Errorf("fingerprint.networks: %w", err)
		}
		store = fingerprint.NewStore(rdb, fingerprint.StoreConfig{
			Prefix:     cfg.Fingerprint.Prefix,
			IPTTL:      cfg.Fingerprint.IPTTLDuration(),
			DHCPTTL:    cfg.Fingerprint.DHCPTTLDuration(),
			ReportHost: cfg.Core.Hostname,
			Interface:  cfg.Core.Interface,
		}, ctr, logger)
	}

	rewriter := decode.NewRewriter(decode.RewriterConfig{
		Host:                cfg.Core.Hostname,
		Classifications:     classes,
		FixupClassification: classes != nil,
		DNS:                 resolver,
		GeoIP:               geo,
	}, logger)

	var checker *health.Checker
	if cfg.Health != nil && cfg.Health.Enabled {
		// A plain nil keeps the interface nil when the store is off.
		var toucher health.Toucher
		if store != nil {
			toucher = store
		}
		checker = health.New(cfg.Health.Signatures, toucher, ctr, clk, logger)
	}

	var clients *decode.ClientStats
	if cfg.Core.ClientStats {
		clients = decode.NewClientStats(clk, logger)
	}

	var hub *pipeline.Hub
	if cfg.API != nil && cfg.API.Enabled && cfg.API.TapEnabled() {
		hub = pipeline.NewHub()
	}

	rcfg := pipeline.RouterConfig{
		Rewriter: rewriter,
		Store:    store,
		Interest: interest,
		MaxBytes: cfg.Core.PayloadBufferSize,
		Health:   checker,
		Stats:    stats.New(cfg.Core.Hostname, ctr.Metrics().Registry(), logger),
		Clients:  clients,
		Hub:      hub,
	}

	if cfg.SQL != nil && cfg.SQL.Enabled {
		sqlSink, err := sinks.NewSQL(sinks.SQLConfig{
			Path:       cfg.SQL.Path,
			SensorName: cfg.SQL.SensorName,
			Interface:  cfg.Core.Interface,
		}, logger)
		if err != nil {
			return fmt.Errorf("sql sink: %w", err)
		}
		defer sqlSink.Close()
		rcfg.SQL = pipeline.SinkPolicy{Sink: sqlSink, Alerts: cfg.SinkAlerts("sql")}
	}

	if cfg.Redis != nil && cfg.Redis.Enabled {
		kv := sinks.NewKV(rdb, sinks.KVConfig{
			Mode: cfg.Redis.Mode,
			Key:  cfg.Redis.Key,
		}, logger)
		rcfg.KV = pipeline.SinkPolicy{
			Sink:   kv,
			Alerts: cfg.SinkAlerts("redis"),
			Types:  cfg.Redis.Routing,
		}
	}

	if cfg.Elasticsearch != nil && cfg.Elasticsearch.Enabled {
		es, err := sinks.NewElastic(sinks.ElasticConfig{
			URL:           cfg.Elasticsearch.URL,
			Username:      cfg.Elasticsearch.Username,
			Password:      cfg.Elasticsearch.Password,
			Insecure:      cfg.Elasticsearch.Insecure,
			Index:         cfg.Elasticsearch.Index,
			NDPIndex:      cfg.Elasticsearch.NDPIndex,
			Batch:         cfg.Elasticsearch.Batch,
			FlushInterval: cfg.Elasticsearch.FlushIntervalDuration(),
		}, clk, ctr, logger)
		if err != nil {
			return fmt.Errorf("elasticsearch sink: %w", err)
		}
		defer es.Close()
		rcfg.Search = pipeline.SinkPolicy{
			Sink:   es,
			Alerts: cfg.SinkAlerts("elasticsearch"),
			Types:  cfg.Elasticsearch.Routing,
		}
	}

	if cfg.Pipe != nil && cfg.Pipe.Enabled {
		pipeSink := sinks.NewPipe(sinks.PipeConfig{
			Path: cfg.Pipe.Path,
			Size: cfg.Pipe.Size,
		}, clk, ctr, logger)
		defer pipeSink.Close()
		rcfg.Pipe = pipeline.SinkPolicy{
			Sink:   pipeSink,
			Alerts: cfg.SinkAlerts("pipe"),
			Types:  cfg.Pipe.Routing,
		}
	}

	var fileSink *sinks.File
	if cfg.File != nil && cfg.File.Enabled {
		fileSink, err = sinks.NewFile(sinks.FileConfig{
			Path:          cfg.File.Path,
			FlushInterval: cfg.File.FlushIntervalDuration(),
		}, logger)
		if err != nil {
			return fmt.Errorf("file sink: %w", err)
		}
		defer fileSink.Close()
		rcfg.File = pipeline.SinkPolicy{
			Sink:   fileSink,
			Alerts: cfg.SinkAlerts("file"),
			Types:  cfg.File.Routing,
		}
	}

	if cfg.External != nil && cfg.External.Enabled {
		rcfg.External = pipeline.SinkPolicy{
			Sink: sinks.NewExternal(sinks.ExternalConfig{
				Program:     cfg.External.Program,
				MaxPriority: cfg.External.MaxPriority,
			}, logger),
			Alerts: cfg.SinkAlerts("external"),
		}
	}

	router := pipeline.NewRouter(rcfg, ctr, logger)

	if cfg.NDP != nil && cfg.NDP.Enabled {
		ignore, err := iprange.ParseSet(cfg.NDP.IgnoreNetworks)
		if err != nil {
			return fmt.Errorf("ndp.ignore_networks: %w", err)
		}
		router.AttachCollector(ndp.New(ndp.Config{
			Ignore:               ignore,
			Routing:              cfg.NDP.Routing,
			SMBInternal:          cfg.NDP.SMBInternal,
			SMBCommands:          cfg.NDP.SMBCommands,
			FTPCommands:          cfg.NDP.FTPCommands,
			Description:          cfg.NDP.Description,
			RequireBothExternal:  cfg.NDP.RequireBothExternal,
			CompatClientVersions: cfg.NDP.CompatClientVersions,
		}, router, ctr, logger))
	}

	proc := pipeline.New(router, ctr, logger)

	var src source
	switch cfg.Input.Type {
	case "unix_socket":
		src = input.NewSocket(input.SocketConfig{Path: cfg.Input.SocketPath}, proc, logger)
	default:
		src = input.NewFollower(input.FollowerConfig{
			Path:  cfg.Input.SpoolFile,
			Waldo: cfg.Input.WaldoFile,
		}, proc, logger)
	}

	// Outputs are open and the pid file is written, so root is no
	// longer needed.
	if err := dropPrivileges(cfg, pidFile, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("input: %w", err)
		}
		return nil
	})

	if cfg.API != nil && cfg.API.Enabled {
		srv := api.NewServer(api.Config{
			Listen: cfg.API.Listen,
			Tap:    cfg.API.TapEnabled(),
			Pprof:  cfg.API.Pprof,
		}, api.Sources{
			Counters: ctr,
			Health:   checker,
			Clients:  clients,
			Hub:      hub,
		}, logger)
		g.Go(func() error {
			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				reopenRuntimeFiles(logOut, fileSink, geo, logger)
			}
		}
	})

	if interval := cfg.Core.StatsIntervalDuration(); interval > 0 {
		g.Go(func() error {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					ctr.LogBanner(logger)
				}
			}
		})
	}

	err = g.Wait()
	ctr.LogBanner(logger)
	logger.Info("stopped")
	return err
}

// buildLogger builds the daemon logger from the core block. With a
// log_file the console is silent; logrotate sends SIGHUP and
// reopenRuntimeFiles picks up the new inode.
func buildLogger(core *config.Core) (*logging.Logger, *logging.ReopenableFile, error) {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(core.LogLevel)
	lc.JSON = core.LogJSON

	if core.LogFile == "" {
		return logging.New(lc), nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(core.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("log directory: %w", err)
	}
	out, err := logging.OpenReopenable(core.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	lc.Output = out
	return logging.New(lc), out, nil
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("run directory: %w", err)
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid+"\n"), 0o644); err != nil {
		return fmt.Errorf("pid file: %w", err)
	}
	return nil
}

func reopenRuntimeFiles(logOut *logging.ReopenableFile, fileSink *sinks.File, geo *geoip.DB, logger *logging.Logger) {
	logger.Info("reload signal")
	if logOut != nil {
		if err := logOut.Reopen(); err != nil {
			logger.Warn("could not reopen log file", "error", err)
		}
	}
	if fileSink != nil {
		if err := fileSink.Reopen(); err != nil {
			logger.Warn("could not reopen output file", "error", err)
		}
	}
	if geo != nil {
		if err := geo.Reload(); err != nil {
			logger.Warn("could not reload geoip database", "error", err)
		} else {
			logger.Info("geoip database reloaded", "path", geo.Path())
		}
	}
}

// dropPrivileges switches to core.runas when set. Files the dropped
// process still has to rewrite are chowned first.
func dropPrivileges(cfg *config.Config, pidFile string, logger *logging.Logger) error {
	runas := cfg.Core.RunAs
	if runas == "" {
		return nil
	}

	uid, gid, err := resolveDropUser(runas)
	if err != nil {
		return err
	}

	own := []string{pidFile}
	if cfg.Core.LogFile != "" {
		own = append(own, cfg.Core.LogFile)
	}
	if cfg.Input.Type == "file" && cfg.Input.WaldoFile != "" {
		own = append(own, filepath.Dir(cfg.Input.WaldoFile))
		own = append(own, cfg.Input.WaldoFile)
	}
	for _, path := range own {
		if err := os.Chown(path, uid, gid); err != nil && !os.IsNotExist(err) {
			logger.Warn("could not chown", "path", path, "error", err)
		}
	}

	if err := applyPrivileges(uid, gid); err != nil {
		return fmt.Errorf("dropping privileges to %s: %w", runas, err)
	}
	logger.Info("dropped privileges", "user", runas, "uid", uid, "gid", gid)
	return nil
}

func resolveDropUser(username string) (uid, gid int, err error) {
	u, err := user.Lookup(username)
	if err != nil {
		return 0, 0, fmt.Errorf("user %s not found: %w", username, err)
	}
	uid, _ = strconv.Atoi(u.Uid)
	gid, _ = strconv.Atoi(u.Gid)
	return uid, gid, nil
}

func applyPrivileges(uid, gid int) error {
	if err := syscall.Setgroups([]int{gid}); err != nil {
		return fmt.Errorf("setgroups failed: %w", err)
	}
	// GID first, a dropped UID cannot change groups anymore.
	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("setgid failed: %w", err)
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("setuid failed: %w", err)
	}
	return nil
}
