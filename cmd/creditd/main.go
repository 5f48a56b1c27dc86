package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"creditchain/config"
	"creditchain/core/events"
	"creditchain/core/state"
	"creditchain/crypto"
	nativecommon "creditchain/native/common"
	"creditchain/native/pricing"
	"creditchain/native/registry"
	"creditchain/native/score"
	"creditchain/native/token"
	"creditchain/native/vault"
	"creditchain/observability/logging"
	"creditchain/rpc"
	"creditchain/storage"
)

const envVar = "CREDIT_ENV"

var genesisAppliedKey = []byte("genesis/applied")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("creditd", env, logging.ParseLevel(cfg.LogLevel))

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	tokens := token.NewLedger(manager)
	if err := applyGenesis(manager, tokens, cfg.Genesis); err != nil {
		logger.Error("Failed to apply genesis mints", slog.Any("error", err))
		os.Exit(1)
	}

	pauses := nativecommon.PauseSet{}
	for _, module := range cfg.Paused {
		pauses[strings.ToLower(strings.TrimSpace(module))] = true
	}
	emitter := events.NewMemoryEmitter(1024)

	vaultAddr := moduleAddress("vault")
	stakeVault := moduleAddress("registry/stake")

	reg := registry.NewEngine(manager)
	reg.SetTokenLedger(tokens, cfg.Registry.StakeSymbol, stakeVault)
	reg.SetEmitter(emitter)
	reg.SetPauses(pauses)
	if issuer := strings.TrimSpace(cfg.Registry.IssuerAddress); issuer != "" {
		reg.SetIssuer(mustAddress(logger, "Registry.IssuerAddress", issuer))
	}
	for _, lender := range cfg.Registry.Lenders {
		reg.SetAuthorizedLender(mustAddress(logger, "Registry.Lenders", lender), true)
	}
	for _, gov := range cfg.Registry.Governance {
		reg.SetAuthorizedGovernance(mustAddress(logger, "Registry.Governance", gov), true)
	}
	for _, relayer := range cfg.Registry.Relayers {
		reg.SetAuthorizedRelayer(mustAddress(logger, "Registry.Relayers", relayer), true)
	}
	for _, selector := range cfg.Registry.AllowedChains {
		reg.SetAllowedChain(selector, true)
	}
	reg.SetAuthorizedLender(vaultAddr, true)

	weights := score.Weights{
		Repayment:  cfg.Scoring.RepaymentWeight,
		Collateral: cfg.Scoring.CollateralWeight,
		Sybil:      cfg.Scoring.SybilWeight,
		CrossChain: cfg.Scoring.CrossChainWeight,
		Governance: cfg.Scoring.GovernanceWeight,
	}
	if err := weights.Validate(); err != nil {
		logger.Error("Invalid scoring weights", slog.Any("error", err))
		os.Exit(1)
	}
	tiers := score.DefaultTierTable()
	if err := tiers.Normalise(); err != nil {
		logger.Error("Invalid tier table", slog.Any("error", err))
		os.Exit(1)
	}
	oracle := score.NewOracle(reg, weights, tiers)

	feed := pricing.NewManualFeed(time.Duration(cfg.Pricing.HeartbeatSeconds) * time.Second)
	for _, seed := range cfg.Pricing.Feeds {
		if err := feed.SetDecimal(seed.Token, seed.Price, time.Now().UTC()); err != nil {
			logger.Error("Failed to seed price feed", slog.String("token", seed.Token), slog.Any("error", err))
			os.Exit(1)
		}
	}

	vaultEngine := vault.NewEngine()
	vaultEngine.SetState(manager)
	vaultEngine.SetCollaborators(reg, oracle, feed, tokens)
	vaultEngine.SetModuleAddress(vaultAddr)
	vaultEngine.SetLiquidityToken(cfg.Vault.LiquidityToken)
	if pool := strings.TrimSpace(cfg.Vault.InsurancePool); pool != "" {
		vaultEngine.SetInsurancePool(mustAddress(logger, "Vault.InsurancePool", pool))
	}
	for _, asset := range cfg.Vault.CollateralAssets {
		vaultEngine.SetAllowedCollateral(asset, true)
	}
	vaultEngine.SetEmitter(emitter)
	vaultEngine.SetPauses(pauses)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(ctx, logger, cfg.MetricsAddress)

	server := rpc.NewServer(rpc.Options{
		Registry:    reg,
		Scores:      oracle,
		Vault:       vaultEngine,
		Tokens:      tokens,
		Feed:        feed,
		Emitter:     emitter,
		BearerToken: cfg.Auth.BearerToken,
		JWTSecret:   cfg.Auth.JWTSecret,
		RateLimit: rpc.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Burst:             cfg.RateLimitBurst,
		},
		Logger: logger,
	})
	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		logger.Error("RPC server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("creditd shut down cleanly")
}

// applyGenesis credits the configured balances exactly once per data
// directory.
func applyGenesis(manager *state.Manager, tokens *token.Ledger, mints []config.GenesisMint) error {
	applied, err := manager.KVGet(genesisAppliedKey, nil)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for _, mint := range mints {
		addr, err := crypto.DecodeAddress(mint.Address)
		if err != nil {
			return fmt.Errorf("genesis mint %q: %w", mint.Address, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(mint.Amount), 10)
		if !ok {
			return fmt.Errorf("genesis mint %q: invalid amount %q", mint.Address, mint.Amount)
		}
		if err := tokens.Mint(mint.Symbol, addr.Raw(), amount); err != nil {
			return fmt.Errorf("genesis mint %q: %w", mint.Address, err)
		}
	}
	return manager.KVPut(genesisAppliedKey, true)
}

// moduleAddress derives a deterministic address reserved for module-held
// funds.
func moduleAddress(label string) [20]byte {
	var out [20]byte
	digest := ethcrypto.Keccak256([]byte("credit/module/" + label))
	copy(out[:], digest[12:])
	return out
}

func mustAddress(logger *slog.Logger, field, value string) [20]byte {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		logger.Error("Invalid configured address", slog.String("field", field), slog.Any("error", err))
		os.Exit(1)
	}
	return addr.Raw()
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string) {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", slog.Any("error", err))
	}
}
