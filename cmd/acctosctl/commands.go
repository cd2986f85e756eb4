package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/danmuck/acctos/internal/ansync"
	"github.com/danmuck/acctos/internal/config"
	"github.com/danmuck/acctos/internal/deployment"
	"github.com/danmuck/acctos/internal/governance"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/ledger/sqlitekv"
	"github.com/danmuck/acctos/internal/server"
	"github.com/rs/zerolog/log"
)

// env is an opened chain and its deployment.
type env struct {
	cfg   config.Config
	chain *ledger.Chain
	d     *deployment.Deployment
}

func (e *env) Close() {
	if err := e.chain.Close(); err != nil {
		log.Warn().Err(err).Msg("acctosctl close chain")
	}
}

func parseFlags(name string, args []string, extra func(*flag.FlagSet)) (config.Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "", "config path (defaults plus ACCTOS_* env when empty)")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return config.Config{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	return config.Load(*path)
}

// open loads the chain from storage and reopens its deployment, deploying
// first when the chain has none.
func open(ctx context.Context, cfg config.Config) (*env, error) {
	var backend ledger.Backend
	if cfg.Storage.Driver == config.StorageSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		store, err := sqlitekv.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		backend = store
	}
	chain, err := newChain(ctx, cfg, backend)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, chain: chain}

	d, err := deployment.Load(ctx, chain)
	if errors.Is(err, deployment.ErrNotDeployed) {
		d, err = deployment.Deploy(ctx, chain, ledger.Address(cfg.Deployment.Admin), cfg.Deployment.Version)
		if err == nil {
			err = createConfiguredAccount(ctx, cfg, d)
		}
	}
	if err != nil {
		e.Close()
		return nil, err
	}
	e.d = d
	return e, nil
}

// newChain opens the chain over backend and closes backend when it cannot.
func newChain(ctx context.Context, cfg config.Config, backend ledger.Backend) (*ledger.Chain, error) {
	chain, err := ledger.NewChain(ctx, cfg.LedgerConfig(), backend)
	if err == nil {
		return chain, nil
	}
	if backend != nil {
		if cerr := backend.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("acctosctl close storage")
		}
	}
	return nil, err
}

func createConfiguredAccount(ctx context.Context, cfg config.Config, d *deployment.Deployment) error {
	gov, ok := cfg.AccountGovernance()
	if !ok {
		return nil
	}
	bundle, err := d.CreateAccount(ctx, gov.Owner(), gov, cfg.Account.Name)
	if err != nil {
		return fmt.Errorf("create configured account: %w", err)
	}
	log.Info().Msgf("acctosctl.createConfiguredAccount account=%d monarch=%s", bundle.AccountID, gov.Owner())
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runDeploy(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := parseFlags("deploy", args, nil)
	if err != nil {
		return err
	}
	e, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()
	return writeJSON(out, e.d.Manifest())
}

func runSync(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := parseFlags("sync", args, nil)
	if err != nil {
		return err
	}
	opts, err := cfg.SubmitterOptions()
	if err != nil {
		return err
	}
	ds, err := ansync.LoadDataset(cfg.ANS.Datasets, cfg.Chain.ID, cfg.Chain.Network)
	if err != nil {
		return err
	}
	if ds.Empty() {
		log.Warn().Msgf("acctosctl.sync chain=%s network=%s dataset is empty", cfg.Chain.ID, cfg.Chain.Network)
	}
	e, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	reports, syncErr := e.d.Submitter(opts).Sync(ctx, ds)
	if err := writeJSON(out, reports); err != nil {
		return err
	}
	return syncErr
}

func runAccount(ctx context.Context, args []string, out io.Writer) error {
	var monarch, name string
	cfg, err := parseFlags("account", args, func(fs *flag.FlagSet) {
		fs.StringVar(&monarch, "monarch", "", "governing address of the new account")
		fs.StringVar(&name, "name", "account", "account name")
	})
	if err != nil {
		return err
	}
	if monarch == "" {
		return fmt.Errorf("%w: -monarch is required", errUsage)
	}
	e, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	owner := ledger.Address(monarch)
	bundle, err := e.d.CreateAccount(ctx, owner, governance.NewMonarchy(owner), name)
	if err != nil {
		return err
	}
	return writeJSON(out, bundle)
}

func runServe(ctx context.Context, args []string) error {
	cfg, err := parseFlags("serve", args, nil)
	if err != nil {
		return err
	}
	e, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()
	return server.New(cfg.Chain.ID, cfg.HTTP.Addr, e.d, cfg.HTTP.CorsOrigins).Serve(ctx)
}
