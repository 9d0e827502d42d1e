// Command mercury-client joins a Mercury home on behalf of one locally-held
// profile: it is the minimal ConnectClient host a DApp would embed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/config"
	"github.com/mercury-network/mercury-go/internal/connectclient"
	"github.com/mercury-network/mercury-go/internal/keyvault"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
	"github.com/sirupsen/logrus"
	"github.com/tyler-smith/go-bip39"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := config.DefaultClientConfig()
	cfg := defaults

	fs := flag.NewFlagSet("mercury-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "client data directory")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.AllowDegraded, "allow-degraded", defaults.AllowDegraded, "accept unencrypted handshakes when peers can't agree a shared cipher suite")
	homeIdText := fs.String("home", "", "target home's profile id (required unless -dry-run)")
	homeAddr := fs.String("home-addr", "", "host:port to dial for -home (required unless -dry-run)")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if *homeAddr != "" {
		cfg.HomeAddrHints = config.NormalizeAddrHints(*homeAddr)
	}
	if err := config.ValidateClientConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	log := newLogger(cfg.LogLevel, stderr)

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
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
	selfId, selfPub, err := activePublic(vault)
	if err != nil {
		fmt.Fprintf(stderr, "no active identity: %v\n", err)
		return 2
	}

	fmt.Fprintf(stdout, "mercury-client: id=%s datadir=%s allow_degraded=%v\n", selfId.String(), cfg.DataDir, cfg.AllowDegraded)
	if *dryRun {
		return 0
	}
	if *homeIdText == "" || *homeAddr == "" {
		fmt.Fprintln(stderr, "-home and -home-addr are required unless -dry-run")
		return 2
	}
	homeId, err := claimmodel.ParseProfileId(*homeIdText)
	if err != nil {
		fmt.Fprintf(stderr, "invalid -home: %v\n", err)
		return 2
	}

	local, err := profilerepo.Open(cfg.LocalRepoPath(), profilerepo.LocalVariant)
	if err != nil {
		fmt.Fprintf(stderr, "local repo open failed: %v\n", err)
		return 2
	}
	defer local.Close()

	signer := vaultSigner{vault: vault, id: selfId}
	cache := connectclient.NewHomeConnectionCache()
	myProfile := connectclient.NewMyProfile(selfId, signer, local, cache, log)

	ownProfile := profilerepo.PrivateProfileData{
		Public: profilerepo.PublicProfileData{PublicKey: selfPub, Version: 1, Attributes: map[string][]byte{}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registered, err := myProfile.JoinHome(ctx, homeId, cfg.HomeAddrHints, ownProfile, cfg.AllowDegraded)
	if err != nil {
		fmt.Fprintf(stderr, "join home failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "mercury-client: registered, profile version=%d\n", registered.Public.Version)
	return 0
}

func newLogger(level string, stderr io.Writer) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(stderr)
	if parsed, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(parsed)
	}
	return logrus.NewEntry(l)
}

// vaultSigner adapts a KeyVault to connectclient.Signer for one fixed
// profile id.
type vaultSigner struct {
	vault *keyvault.Vault
	id    claimmodel.ProfileId
}

func (s vaultSigner) ProfileId() claimmodel.ProfileId { return s.id }
func (s vaultSigner) PrivateKeyFor(id claimmodel.ProfileId) (claimmodel.PrivateKey, error) {
	return s.vault.PrivateKeyFor(id)
}

// openOrCreateVault loads the client's identity vault, or mints a fresh
// 24-word mnemonic and a single "self" key on first run, printing the
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
	if _, err := vault.CreateKey("self"); err != nil {
		return nil, false, err
	}
	fmt.Fprintf(stderr, "mercury-client: new identity created, back up this mnemonic now:\n\n  %s\n\n", mnemonic)
	return vault, true, nil
}

func saveVault(vault *keyvault.Vault, path string) error {
	data, err := vault.Save()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func activePublic(vault *keyvault.Vault) (claimmodel.ProfileId, claimmodel.PublicKey, error) {
	idx, ok := vault.ActiveIdx()
	if !ok {
		return claimmodel.ProfileId{}, claimmodel.PublicKey{}, fmt.Errorf("vault has no active key")
	}
	records := vault.Records()
	if idx < 0 || idx >= len(records) {
		return claimmodel.ProfileId{}, claimmodel.PublicKey{}, fmt.Errorf("active index out of range")
	}
	id := records[idx].Id
	sk, err := vault.PrivateKeyFor(id)
	if err != nil {
		return claimmodel.ProfileId{}, claimmodel.PublicKey{}, err
	}
	pk, err := sk.PublicKey()
	return id, pk, err
}
