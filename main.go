package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"apphost/api"
	"apphost/cloudflare"
	"apphost/config"
	"apphost/logger"
	"apphost/manager"
	"apphost/mealie"
	"apphost/topology"
	"apphost/types"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupTimeout  = 60 * time.Second
)

var _ manager.IngressRegistrar = (*cloudflare.Manager)(nil)

const usage = `Usage: apphost [flags] <command>

Commands:
  graph      print the resource graph (-format json|yaml|dot|mermaid)
  env        print the declared environment of each container
  validate   check the topology and exit
  run        provision the topology on Docker and serve the API until interrupted

Flags:
`

type cliFlags struct {
	configPath string
	profile    string
	descriptor string
	format     string
	container  string
}

func main() {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "path to a JSON config file")
	flag.StringVar(&f.profile, "profile", "", "deployment profile: plain-container or cloud-managed")
	flag.StringVar(&f.descriptor, "descriptor", "", "HCL topology descriptor, replaces the built-in profile")
	flag.StringVar(&f.format, "format", "json", "graph output format")
	flag.StringVar(&f.container, "container", "", "limit env output to one container")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := execute(flag.Arg(0), f, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "apphost:", err)
		os.Exit(1)
	}
}

func execute(command string, f cliFlags, stdout io.Writer) error {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.profile != "" {
		cfg.Profile = f.profile
	}
	if f.descriptor != "" {
		cfg.Descriptor = f.descriptor
	}

	log := logger.New("apphost", cfg.LogLevel, cfg.LogFormat, os.Stderr)

	g, err := loadGraph(cfg)
	if err != nil {
		return err
	}

	switch command {
	case "graph":
		return g.Encode(stdout, topology.Format(f.format))
	case "env":
		return printEnv(stdout, g, f.container)
	case "validate":
		fmt.Fprintf(stdout, "%s: %d resources, %d edges, order %v\n", g.Name, len(g.Nodes), len(g.Edges), g.TopoOrder)
		return nil
	case "run":
		return run(cfg, g, log)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// loadGraph builds the graph from the descriptor file when one is configured,
// otherwise from the built-in profile.
func loadGraph(cfg config.Config) (*topology.ResourceGraph, error) {
	if cfg.Descriptor != "" {
		return topology.LoadHCLFile(cfg.Descriptor)
	}
	profile, err := mealie.LookupProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}
	return mealie.Build(profile, mealie.Options{
		AllowSignup: cfg.AllowSignup,
		PUID:        cfg.PUID,
		PGID:        cfg.PGID,
		TimeZone:    cfg.TimeZone,
	})
}

func printEnv(w io.Writer, g *topology.ResourceGraph, only string) error {
	found := false
	for _, c := range g.Containers {
		if only != "" && c.Name != only {
			continue
		}
		found = true
		fmt.Fprintf(w, "# %s\n", c.Name)
		values := make(map[string]types.Value, len(c.Env))
		for _, e := range c.Env {
			values[e.Name] = e.Value
		}
		for _, key := range c.EnvKeys() {
			fmt.Fprintf(w, "%s=%s\n", key, values[key])
		}
	}
	if only != "" && !found {
		return fmt.Errorf("no container named %q", only)
	}
	return nil
}

// credentials returns the configured password, or one generated once and kept
// in the state directory.
func credentials(cfg config.Config) func(string) (manager.Credentials, error) {
	return func(server string) (manager.Credentials, error) {
		password := cfg.PostgresPassword
		if password == "" {
			var err error
			password, err = config.LoadOrCreateSecret(cfg.StateDir, server+"-password")
			if err != nil {
				return manager.Credentials{}, err
			}
		}
		return manager.Credentials{UserName: cfg.PostgresUser, Password: password}, nil
	}
}

// newIngress builds the domain manager. With Cloudflare disabled the client
// only records the domains it would have created.
func newIngress(cfg config.Config, log *slog.Logger) (*cloudflare.Manager, error) {
	client, err := cloudflare.NewClient(cfg.Cloudflare, cfg.ServerAddress, log)
	if err != nil {
		return nil, err
	}
	return cloudflare.NewManager(client, cfg.Cloudflare.AutoGenerate, log), nil
}

// adminHost is the address the host process uses to reach published ports.
func adminHost(publishHost string) string {
	if publishHost == "" || publishHost == "0.0.0.0" || publishHost == "::" {
		return "127.0.0.1"
	}
	return publishHost
}

func run(cfg config.Config, g *topology.ResourceGraph, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	containerManager, err := manager.NewContainerManager(cfg.DockerHost, cfg.PublishHost, log)
	if err != nil {
		return err
	}
	defer containerManager.Close()
	if err := containerManager.Ping(ctx); err != nil {
		return err
	}

	ingress, err := newIngress(cfg, log)
	if err != nil {
		return err
	}

	stateManager := manager.NewStateManager()
	orchestrator := manager.NewOrchestrator(
		containerManager,
		manager.NewPostgresAdmin(time.Second, log),
		stateManager,
		manager.Options{
			Network:          cfg.Network,
			AdminHost:        adminHost(cfg.PublishHost),
			ReadinessTimeout: cfg.ReadinessTimeoutDuration(),
			Credentials:      credentials(cfg),
		},
		log,
	).WithIngress(ingress).
		WithHealthChecker(manager.NewHTTPChecker("/", 2*time.Second, log)).
		WithMetrics(manager.NewMetrics(prometheus.DefaultRegisterer))

	apiServer := &http.Server{
		Addr:    cfg.APIServerPort,
		Handler: api.NewServer(g, stateManager, ingress, prometheus.DefaultGatherer, log).Handler(),
	}
	go func() {
		log.Info("API server starting", "addr", cfg.APIServerPort)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("API server failed", "error", err)
			cancel()
		}
	}()

	log.Info("provisioning topology", "topology", g.Name, "session", orchestrator.Session(), "order", g.TopoOrder)
	runErr := make(chan error, 1)
	go func() { runErr <- orchestrator.Run(ctx, g) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var result error
	select {
	case err := <-runErr:
		if err != nil {
			log.Error("provisioning failed", "error", err)
			result = err
			break
		}
		logEndpoints(log, stateManager)
		select {
		case <-quit:
		case <-ctx.Done():
		}
	case <-quit:
		cancel()
		<-runErr
	case <-ctx.Done():
		<-runErr
	}
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("API server failed to shut down gracefully", "error", err)
	}

	cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cleanupCancel()
	if err := ingress.DeleteAll(cleanupCtx); err != nil {
		log.Warn("failed to remove ingress domains", "error", err)
	}
	if err := orchestrator.Shutdown(cleanupCtx, g); err != nil {
		log.Error("failed to stop resources", "error", err)
		result = errors.Join(result, err)
	}

	log.Info("apphost exited")
	return result
}

func logEndpoints(log *slog.Logger, sm *manager.StateManager) {
	for _, status := range sm.GetAllResources() {
		names := make([]string, 0, len(status.Endpoints))
		for name := range status.Endpoints {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			alloc := status.Endpoints[name]
			log.Info("endpoint", "resource", status.Name, "endpoint", name,
				"address", fmt.Sprintf("%s:%d", alloc.PublishedHost, alloc.PublishedPort))
		}
	}
}
