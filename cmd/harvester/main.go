// Command harvester runs site descriptors through the harvesting engine and
// prints one run summary per site.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adda-Baaj/taja-khobor/internal/config"
	"github.com/Adda-Baaj/taja-khobor/internal/crawler"
	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/internal/session"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
	"github.com/Adda-Baaj/taja-khobor/pkg/publishers"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runFlags struct {
	configFile string
	mode       string
	parallel   int
	all        bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Configuration-driven news harvester",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var flags runFlags
	run := &cobra.Command{
		Use:   "run [site-id...]",
		Short: "Harvest the named sites, or every enabled site with --all",
		Example: `  harvester run thehindu ndtv --mode full
  harvester run --all --config harvester.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !flags.all {
				return errors.New("name at least one site id or pass --all")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSites(ctx, flags, args)
		},
	}
	run.Flags().StringVarP(&flags.configFile, "config", "c", "", "engine config file (YAML)")
	run.Flags().StringVarP(&flags.mode, "mode", "m", "", "run mode: full or update (default from config)")
	run.Flags().IntVarP(&flags.parallel, "parallel", "p", 1, "sites harvested concurrently")
	run.Flags().BoolVar(&flags.all, "all", false, "harvest every enabled site")

	root.AddCommand(run)
	return root
}

func runSites(ctx context.Context, flags runFlags, ids []string) error {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	mode := cfg.RunMode()
	if flags.mode != "" {
		parsed, ok := domain.ParseRunMode(flags.mode)
		if !ok {
			return fmt.Errorf("%w: unknown run mode %q", domain.ErrFatalConfig, flags.mode)
		}
		mode = parsed
	}

	log, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	registry, err := providers.LoadRegistry(cfg.ProvidersFile)
	if err != nil {
		return err
	}
	sites, err := selectSites(registry, ids, flags.all)
	if err != nil {
		return err
	}

	var sessions *session.Store
	if usesBrowser(sites) {
		sessions, err = session.Open(cfg.Browser.SessionDB)
		if err != nil {
			return err
		}
		defer sessions.Close()
	}

	opts := crawler.Options{
		DataDir:           cfg.DataDir,
		BatchSize:         cfg.BatchSize,
		PersistThumbnails: cfg.PersistThumbnails,
		Fetchers:          crawler.NetworkFetchers(cfg.FetcherOptions(log, sessions)),
		Log:               log,
	}
	if cfg.PublishersFile != "" {
		pubCfg, err := publishers.LoadConfig(cfg.PublishersFile)
		if err != nil {
			return err
		}
		dispatcher, err := publishers.Build(ctx, publishers.DefaultRegistry(), pubCfg.Enabled(), log)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := dispatcher.Close(); cerr != nil {
				log.WarnObj("publisher close failed", "publisher_close_error", map[string]any{"error": cerr.Error()})
			}
		}()
		if dispatcher.Len() > 0 {
			opts.Publisher = dispatcher
		}
	}

	orch, err := crawler.New(opts)
	if err != nil {
		return err
	}

	summaries := make([]domain.RunSummary, len(sites))
	errs := make([]error, len(sites))
	var g errgroup.Group
	g.SetLimit(max(flags.parallel, 1))
	for i, p := range sites {
		g.Go(func() error {
			summaries[i], errs[i] = orch.Run(ctx, p, mode)
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(os.Stdout)
	for _, s := range summaries {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return errors.Join(errs...)
}

func selectSites(reg *providers.Registry, ids []string, all bool) ([]providers.Provider, error) {
	if all {
		sites := reg.Enabled()
		if len(sites) == 0 {
			return nil, errors.New("no enabled sites in providers file")
		}
		return sites, nil
	}
	sites := make([]providers.Provider, 0, len(ids))
	for _, id := range ids {
		p, ok := reg.ByID(id)
		if !ok {
			return nil, fmt.Errorf("unknown site %q", id)
		}
		sites = append(sites, p)
	}
	return sites, nil
}

func usesBrowser(sites []providers.Provider) bool {
	for _, p := range sites {
		if p.ClientKind == providers.ClientBrowser {
			return true
		}
	}
	return false
}
