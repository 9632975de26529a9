package config

import (
	"fmt"
	"os"
	"strconv"
)

// LoadEnv builds a Config from IROHA_<SECTION>_<FIELD> environment
// variables layered over base (typically DefaultConfig()), for container
// deployments that configure by environment rather than a mounted file.
// Unset variables leave base's value untouched.
func LoadEnv(base *Config) (*Config, error) {
	cfg := *base

	if v, ok := os.LookupEnv("IROHA_NODE_ID"); ok {
		cfg.NodeID = v
	}
	if v, ok := os.LookupEnv("IROHA_NODE_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("IROHA_NODE_IDENTITY_KEY"); ok {
		cfg.IdentityKeyHex = v
	}
	if v, ok := os.LookupEnv("IROHA_NODE_RPC_AUTH_TOKEN"); ok {
		cfg.RPCAuthToken = v
	}
	if err := setIntEnv("IROHA_NETWORK_RPC_PORT", &cfg.RPCPort); err != nil {
		return nil, err
	}
	if err := setIntEnv("IROHA_NETWORK_P2P_PORT", &cfg.P2PPort); err != nil {
		return nil, err
	}
	if err := setIntEnv("IROHA_QUEUE_MAX_BLOCK_TXS", &cfg.MaxBlockTxs); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv("IROHA_GENESIS_CHAIN_ID"); ok {
		cfg.Genesis.ChainId = v
	}
	if v, ok := os.LookupEnv("IROHA_GENESIS_DEFAULT_DOMAIN"); ok {
		cfg.Genesis.DefaultDomain = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func setIntEnv(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}
