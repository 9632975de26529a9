// Command node starts an irohad node.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tolelom/irohad/blockpipeline"
	"github.com/tolelom/irohad/config"
	"github.com/tolelom/irohad/consensus"
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
	"github.com/tolelom/irohad/events"
	"github.com/tolelom/irohad/executor"
	"github.com/tolelom/irohad/executor/builtin"
	"github.com/tolelom/irohad/network"
	"github.com/tolelom/irohad/queue"
	"github.com/tolelom/irohad/rpc"
	"github.com/tolelom/irohad/storage"
	"github.com/tolelom/irohad/triggers"
	triggerbuiltin "github.com/tolelom/irohad/triggers/builtin"
	"github.com/tolelom/irohad/vm"
	"github.com/tolelom/irohad/wallet"
	"github.com/tolelom/irohad/wsv"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file (used when identity_key_hex is unset)")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	flag.Parse()

	// Read keystore password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("IROHA_KEYSTORE_PASSWORD")
	if password == "" {
		log.Println("WARNING: IROHA_KEYSTORE_PASSWORD not set — keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key (peer identity): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg, err = config.LoadEnv(cfg)
	if err != nil {
		log.Fatalf("config env overlay: %v", err)
	}

	// ---- load node identity key ----
	privKey, err := loadIdentity(cfg, *keyPath, password)
	if err != nil {
		log.Fatalf("load identity key: %v", err)
	}

	// ---- open durable storage ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}

	expectedGenesisHash, err := expectedGenesisHash(cfg, privKey)
	if err != nil {
		log.Fatalf("compute expected genesis hash: %v", err)
	}
	kura, err := storage.Open(cfg.DataDir+"/blocks", expectedGenesisHash, storage.ReplayStrict, 256)
	if err != nil {
		log.Fatalf("open block store: %v", err)
	}
	defer kura.Close()

	indexDB, err := storage.NewLevelDB(cfg.DataDir + "/index")
	if err != nil {
		log.Fatalf("open index store: %v", err)
	}
	defer indexDB.Close()

	chain := core.NewBlockchain(kura)
	if err := chain.Init(); err != nil {
		log.Fatalf("blockchain init: %v", err)
	}

	// ---- world state, events, sandboxed runtime, executor policy ----
	w := wsv.New()
	emitter := events.NewEmitter()
	sandbox := vm.NewSandbox()

	registry := executor.NewRegistry()
	builtin.Register(registry)
	policy := executor.NewPolicy(registry, sandbox)

	q := queue.New(10_000, 64)

	triggerEngine := triggers.NewEngine(w, emitter, sandbox)
	triggerbuiltin.NewAssetIndex(indexDB, emitter)

	maxBlockTxs := cfg.MaxBlockTxs
	if maxBlockTxs <= 0 {
		maxBlockTxs = 500
	}
	pipeline := blockpipeline.New(w, chain, q, policy, triggerEngine)
	pipeline.Emitter = emitter

	// ---- genesis / restart replay ----
	if chain.Tip() == nil {
		if err := config.InitGenesis(w, chain, q, &cfg.Genesis, privKey); err != nil {
			log.Fatalf("genesis: %v", err)
		}
		log.Printf("Genesis block committed for chain %q", cfg.Genesis.ChainId)
	} else {
		if err := pipeline.Replay(); err != nil {
			log.Fatalf("replay existing chain: %v", err)
		}
		log.Printf("Replayed %d blocks from storage", chain.Height())
	}

	// ---- network ----
	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(cfg.NodeID, p2pAddr, q, privKey)
	syncer := network.NewSyncer(node, pipeline)

	// ---- consensus ----
	// Sumeragi needs a Transport at construction time, but the transport's
	// incoming-message dispatch needs to call back into Sumeragi: broken by
	// handing the transport a forwarding closure that is only live once
	// sumeragi itself is assigned below (registration happens before the
	// node starts accepting consensus frames from peers).
	var sumeragi *consensus.Sumeragi
	transport := network.NewConsensusTransport(node, func(msg consensus.Message) {
		sumeragi.HandleMessage(msg)
	})
	sumeragi = consensus.New(pipeline, transport, emitter, privKey, 0, maxBlockTxs)
	if err := node.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer node.Stop()
	log.Printf("P2P listening on %s", p2pAddr)

	// ---- connect to seed peers ----
	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.Address, sp.Address); err != nil {
			log.Printf("seed peer %s: %v", sp.Address, err)
			continue
		}
		if peer := node.Peer(sp.Address); peer != nil {
			if err := syncer.SyncWithPeer(peer); err != nil {
				log.Printf("sync with seed peer %s: %v", sp.Address, err)
			}
		}
		log.Printf("Connected to seed peer %s", sp.Address)
	}

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(chain, w, q, policy, cfg.Genesis.ChainId)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	// ---- consensus loop ----
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sumeragi.Run(done)
	}()
	log.Printf("Consensus running (peer: %s)", privKey.Public().Hex())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// 1. Stop consensus first (no new blocks written)
	close(done)
	wg.Wait()

	// 2. Deferred calls run in LIFO: rpcServer.Stop -> node.Stop -> indexDB.Close -> kura.Close
	log.Println("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// loadIdentity prefers cfg.IdentityKeyHex (set directly or via the
// IROHA_NODE_IDENTITY_KEY env overlay, for container deploys that inject
// secrets as environment variables) and falls back to the encrypted
// keystore file, the teacher's original persistence mechanism.
func loadIdentity(cfg *config.Config, keyPath, password string) (crypto.PrivateKey, error) {
	if cfg.IdentityKeyHex != "" {
		return crypto.PrivKeyFromHex(cfg.IdentityKeyHex)
	}
	return wallet.LoadKey(keyPath, password)
}

// expectedGenesisHash computes the hash genesis block #0 will have under
// cfg and privKey, without committing it anywhere: storage.Open needs this
// up front to stamp a brand-new data directory's metadata, but an existing
// directory ignores the argument in favour of its own persisted metadata.
func expectedGenesisHash(cfg *config.Config, privKey crypto.PrivateKey) (string, error) {
	scratch := wsv.New()
	block, bc, err := config.BuildGenesisBlock(scratch, &cfg.Genesis, privKey)
	if err != nil {
		return "", err
	}
	bc.Discard()
	return block.ComputeHash()
}
