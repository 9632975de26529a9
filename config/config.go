// Package config loads node configuration: JSON file config the teacher's
// style follows, plus an IROHA_-prefixed environment overlay for the
// container-native deployments spec.md's ambient stack expects alongside
// it (config/env.go).
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// SeedPeer identifies a remote node to connect to on startup: its dial
// address and long-term ed25519 identity public key (hex), the same key
// consensus uses for role rotation and signature verification.
type SeedPeer struct {
	Address string `json:"address"`
	KeyHex  string `json:"key_hex"`
}

// GenesisAccount seeds one account in the genesis domain.
type GenesisAccount struct {
	KeyHex string `json:"key_hex"`
	Quorum uint32 `json:"quorum"`
}

// GenesisConfig describes the chain's initial world state: its chain id,
// the default domain every genesis account is registered under, and the
// peer set that bootstraps consensus role rotation.
type GenesisConfig struct {
	ChainId       string           `json:"chain_id"`
	DefaultDomain string           `json:"default_domain"`
	Accounts      []GenesisAccount `json:"accounts"`
	Peers         []SeedPeer       `json:"peers"`
}

// Config holds all node configuration.
type Config struct {
	NodeID         string        `json:"node_id"`
	DataDir        string        `json:"data_dir"`
	RPCPort        int           `json:"rpc_port"`
	P2PPort        int           `json:"p2p_port"`
	MaxBlockTxs    int           `json:"max_block_txs"`     // max transactions per block; 0 → 500
	IdentityKeyHex string        `json:"identity_key_hex"`  // node's long-term ed25519 private key
	Genesis        GenesisConfig `json:"genesis"`
	SeedPeers      []SeedPeer    `json:"seed_peers,omitempty"`
	RPCAuthToken   string        `json:"rpc_auth_token,omitempty"` // empty → no auth
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		DataDir:     "./data",
		RPCPort:     8545,
		P2PPort:     30303,
		MaxBlockTxs: 500,
		Genesis: GenesisConfig{
			ChainId:       "irohad-dev",
			DefaultDomain: "wonderland",
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.ChainId == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.Genesis.DefaultDomain == "" {
		return fmt.Errorf("genesis.default_domain must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if _, err := hex.DecodeString(c.IdentityKeyHex); c.IdentityKeyHex != "" && err != nil {
		return fmt.Errorf("identity_key_hex: %w", err)
	}
	if len(c.Genesis.Peers) == 0 {
		return fmt.Errorf("genesis.peers must not be empty")
	}
	for i, p := range c.Genesis.Peers {
		b, err := hex.DecodeString(p.KeyHex)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("genesis.peers[%d]: key_hex must be 64-char hex (32 bytes ed25519 pubkey), got %q", i, p.KeyHex)
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
