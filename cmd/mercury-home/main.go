// Command mercury-home runs a Mercury home server: it hosts personas,
// brokers pairing, and routes calls between profiles registered on it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/config"
	"github.com/mercury-network/mercury-go/internal/homeserver"
	"github.com/mercury-network/mercury-go/internal/keyvault"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
	"github.com/sirupsen/logrus"
	"github.com/tyler-smith/go-bip39"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := config.DefaultHomeConfig()
	cfg := defaults

	fs := flag.NewFlagSet("mercury-home", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "home data directory")
	fs.StringVar(&cfg.BindAddr, "bind", defaults.BindAddr, "bind address host:port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.AllowDegraded, "allow-degraded", defaults.AllowDegraded, "accept unencrypted handshakes when peers can't agree a shared cipher suite")
	fs.StringVar(&cfg.RemoteRepo, "remote-repo", defaults.RemoteRepo, "osg peer address for distributed profile replication (optional)")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := config.ValidateHomeConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	log := newLogger(cfg.LogLevel, stderr)

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 2
	}
	schemaDir := filepath.Join(cfg.DataDir, "schemas")
	if err := os.MkdirAll(schemaDir, 0o750); err != nil {
		fmt.Fprintf(stderr, "schema dir create failed: %v\n", err)
		return 2
	}

	vault, isNew, err := openOrCreateVault(cfg.VaultPath(), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "vault open failed: %v\n", err)
		return 2
	}
	if isNew {
		if err := saveVault(vault, cfg.VaultPath()); err != nil {
			fmt.Fprintf(stderr, "vault save failed: %v\n", err)
			return 2
		}
	}
	selfId, signer, err := activeIdentity(vault)
	if err != nil {
		fmt.Fprintf(stderr, "no active home identity: %v\n", err)
		return 2
	}

	local, err := profilerepo.Open(cfg.LocalRepoPath(), profilerepo.LocalVariant)
	if err != nil {
		fmt.Fprintf(stderr, "local repo open failed: %v\n", err)
		return 2
	}
	defer local.Close()

	var remote profilerepo.Writer
	if cfg.RemoteRepo != "" {
		client, err := profilerepo.Dial(cfg.RemoteRepo, log)
		if err != nil {
			fmt.Fprintf(stderr, "remote repo dial failed: %v\n", err)
			return 2
		}
		remote = client
	}

	schemas, err := claimmodel.LoadSchemaRegistry(schemaDir, log)
	if err != nil {
		fmt.Fprintf(stderr, "schema registry load failed: %v\n", err)
		return 2
	}

	fmt.Fprintf(stdout, "mercury-home: id=%s (%s) bind=%s allow_degraded=%v datadir=%s\n", selfId.String(), keyvault.SuggestAlias(selfId), cfg.BindAddr, cfg.AllowDegraded, cfg.DataDir)
	if *dryRun {
		return 0
	}

	server := homeserver.New(selfId, signer, local, remote, schemas, log)

	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		fmt.Fprintf(stderr, "listen failed: %v\n", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- server.Listen(ln, cfg.AllowDegraded) }()

	select {
	case <-ctx.Done():
		_ = ln.Close()
		log.Info("mercury-home: shutting down")
		return 0
	case err := <-errc:
		if err != nil {
			fmt.Fprintf(stderr, "listener stopped: %v\n", err)
			return 1
		}
		return 0
	}
}

func newLogger(level string, stderr io.Writer) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(stderr)
	if parsed, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(parsed)
	}
	return logrus.NewEntry(l)
}

// openOrCreateVault loads the home's identity vault, or mints a fresh
// 24-word mnemonic and a single "home" key on first run, printing the
// mnemonic once so the operator can back it up.
func openOrCreateVault(path string, stderr io.Writer) (*keyvault.Vault, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		v, err := keyvault.LoadVault(data)
		return v, false, err
	}
	if !os.IsNotExist(err) {
		return nil, false, err
	}

	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, false, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, false, err
	}
	seed, err := keyvault.NewSeedFromMnemonic(mnemonic)
	if err != nil {
		return nil, false, err
	}
	vault, err := keyvault.CreateVault(seed, claimmodel.SuiteEd25519)
	if err != nil {
		return nil, false, err
	}
	if _, err := vault.CreateKey("home"); err != nil {
		return nil, false, err
	}
	fmt.Fprintf(stderr, "mercury-home: new identity created, back up this mnemonic now:\n\n  %s\n\n", mnemonic)
	return vault, true, nil
}

func saveVault(vault *keyvault.Vault, path string) error {
	data, err := vault.Save()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func activeIdentity(vault *keyvault.Vault) (claimmodel.ProfileId, claimmodel.PrivateKey, error) {
	idx, ok := vault.ActiveIdx()
	if !ok {
		return claimmodel.ProfileId{}, claimmodel.PrivateKey{}, fmt.Errorf("vault has no active key")
	}
	records := vault.Records()
	if idx < 0 || idx >= len(records) {
		return claimmodel.ProfileId{}, claimmodel.PrivateKey{}, fmt.Errorf("active index out of range")
	}
	id := records[idx].Id
	sk, err := vault.PrivateKeyFor(id)
	return id, sk, err
}
