package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/acctos/internal/ansync"
	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/config"
	"github.com/danmuck/acctos/internal/deployment"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/danmuck/acctos/internal/testutil/testlog"
)

const assetsJSON = `{
  "juno": {
    "juno-1": [["junox", {"native": "ujunox"}], ["crab", {"cw20": "juno1crab"}]]
  }
}`

const poolsJSON = `{
  "juno": {
    "juno-1": [[{"contract": "juno1pool"}, {"dex": "junoswap", "pool_type": "constant_product", "assets": ["crab", "junox"]}]]
  }
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// writeConfig points a sqlite-backed config at dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	assets := writeFile(t, dir, "assets.json", assetsJSON)
	pools := writeFile(t, dir, "pools.json", poolsJSON)
	return writeFile(t, dir, "config.toml", `
[chain]
id = "juno"
network = "juno-1"

[storage]
path = "`+filepath.Join(dir, "state", "acctos.db")+`"

[deployment]
admin = "acct1ops"
version = "0.4.0"

[ans]
chunk_size = 1

[ans.datasets]
assets = "`+assets+`"
pools = "`+pools+`"

[account]
monarch = "acct1king"
name = "ops"
`)
}

func TestDeploySyncAccountAcrossRuns(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	var out bytes.Buffer
	if err := run(ctx, []string{"deploy", "-config", cfgPath}, &out); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	var first deployment.Manifest
	if err := json.Unmarshal(out.Bytes(), &first); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if first.Admin != "acct1ops" || first.Version != "0.4.0" {
		t.Fatalf("unexpected manifest %+v", first)
	}

	out.Reset()
	if err := run(ctx, []string{"deploy", "-config", cfgPath}, &out); err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	var again deployment.Manifest
	if err := json.Unmarshal(out.Bytes(), &again); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if again != first {
		t.Fatalf("second run redeployed: %+v vs %+v", again, first)
	}

	out.Reset()
	if err := run(ctx, []string{"sync", "-config", cfgPath}, &out); err != nil {
		t.Fatalf("sync: %v", err)
	}
	var reports []ansync.Report
	if err := json.Unmarshal(out.Bytes(), &reports); err != nil {
		t.Fatalf("decode reports: %v", err)
	}
	byKind := map[string]ansync.Report{}
	for _, r := range reports {
		byKind[r.Kind] = r
	}
	if r := byKind["assets"]; r.Chunks != 2 || r.Committed != 2 || r.Added != 2 {
		t.Fatalf("unexpected asset report %+v", r)
	}

	out.Reset()
	if err := run(ctx, []string{"account", "-config", cfgPath, "-monarch", "acct1queen", "-name", "second"}, &out); err != nil {
		t.Fatalf("account: %v", err)
	}
	var bundle api.AccountBundle
	if err := json.Unmarshal(out.Bytes(), &bundle); err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	// The configured monarch's account was created at deploy.
	if bundle.AccountID != 2 {
		t.Fatalf("expected account 2, got %+v", bundle)
	}
}

func TestUsageErrors(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	for _, args := range [][]string{
		nil,
		{"launch"},
		{"deploy", "-bogus"},
		{"account"},
	} {
		if err := run(ctx, args, &bytes.Buffer{}); !errors.Is(err, errUsage) {
			t.Fatalf("%v: expected usage error, got %v", args, err)
		}
	}
}

var errLoad = errors.New("load failed")

// brokenBackend fails to load and records whether it was closed.
type brokenBackend struct {
	closed bool
}

func (b *brokenBackend) Load(context.Context) (map[string][]byte, error) {
	return nil, errLoad
}

func (b *brokenBackend) Commit(context.Context, []ledger.Change) error {
	return nil
}

func (b *brokenBackend) Close() error {
	b.closed = true
	return nil
}

func TestNewChainClosesBackendOnFailure(t *testing.T) {
	testlog.Start(t)
	backend := &brokenBackend{}
	if _, err := newChain(context.Background(), config.Default(), backend); !errors.Is(err, errLoad) {
		t.Fatalf("expected load error, got %v", err)
	}
	if !backend.closed {
		t.Fatalf("backend left open after failed chain start")
	}
}
