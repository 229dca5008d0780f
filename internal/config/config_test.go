package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dataDir := t.TempDir()
	cfg, err := Load([]string{"--data_dir=" + dataDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BitcoinNetwork != Bitcoin {
		t.Errorf("expected default network %q, got %q", Bitcoin, cfg.BitcoinNetwork)
	}
	if cfg.PeerPort != 9735 {
		t.Errorf("expected default peer_port 9735, got %d", cfg.PeerPort)
	}
	if cfg.DataDir != dataDir {
		t.Errorf("expected data_dir %q, got %q", dataDir, cfg.DataDir)
	}
}

func TestLoadFromTOMLFile(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "kld.toml")
	body := `
node_name = "my-node"
bitcoin_network = "testnet"
peer_port = 19735
data_dir = "` + dir + `"
`
	if err := os.WriteFile(confPath, []byte(body), 0600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := Load([]string{"--configfile=" + confPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NodeName != "my-node" {
		t.Errorf("expected node_name %q, got %q", "my-node", cfg.NodeName)
	}
	if cfg.BitcoinNetwork != Testnet {
		t.Errorf("expected network %q, got %q", Testnet, cfg.BitcoinNetwork)
	}
	if cfg.PeerPort != 19735 {
		t.Errorf("expected peer_port 19735, got %d", cfg.PeerPort)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "kld.toml")
	body := `
node_name = "file-node"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(confPath, []byte(body), 0600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := Load([]string{"--configfile=" + confPath, "--node_name=flag-node"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NodeName != "flag-node" {
		t.Errorf("expected flags to win over the file, got node_name %q", cfg.NodeName)
	}
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	dataDir := t.TempDir()
	_, err := Load([]string{"--data_dir=" + dataDir, "--bitcoin_network=dogecoin"})
	if err == nil {
		t.Fatal("expected an unrecognised bitcoin_network to fail validation")
	}
}

func TestLoadRejectsOverlongNodeName(t *testing.T) {
	dataDir := t.TempDir()
	longName := make([]byte, 33)
	for i := range longName {
		longName[i] = 'a'
	}
	_, err := Load([]string{"--data_dir=" + dataDir, "--node_name=" + string(longName)})
	if err == nil {
		t.Fatal("expected an overlong node_name to fail validation")
	}
}

func TestNetworkParams(t *testing.T) {
	cases := map[Network]string{
		Bitcoin: "mainnet",
		Testnet: "testnet3",
		Signet:  "signet",
		Regtest: "regtest",
	}
	for network, wantName := range cases {
		params := network.Params()
		if params.Name != wantName {
			t.Errorf("network %q: got params name %q, want %q", network, params.Name, wantName)
		}
	}
}

func TestEnsureDirsCreatesMacaroonSubdir(t *testing.T) {
	dataDir := t.TempDir()
	certsDir := filepath.Join(t.TempDir(), "certs")
	cfg := &Config{DataDir: dataDir, CertsDir: certsDir}

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "macaroons")); err != nil {
		t.Errorf("expected macaroons subdir to be created: %v", err)
	}
	if _, err := os.Stat(certsDir); err != nil {
		t.Errorf("expected certs dir to be created: %v", err)
	}
}

func TestMacaroonAndCertPaths(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/kld-data", CertsDir: "/tmp/kld-certs"}

	if got, want := cfg.MacaroonPath("admin"), "/tmp/kld-data/macaroons/admin.macaroon"; got != want {
		t.Errorf("MacaroonPath: got %q, want %q", got, want)
	}
	if got, want := cfg.CertPath(), "/tmp/kld-certs/kld.crt"; got != want {
		t.Errorf("CertPath: got %q, want %q", got, want)
	}
	if got, want := cfg.KeyPath(), "/tmp/kld-certs/kld.key"; got != want {
		t.Errorf("KeyPath: got %q, want %q", got, want)
	}
}
