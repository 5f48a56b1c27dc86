package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"creditchain/crypto"
)

// Config is the daemon configuration loaded from TOML.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`
	LogLevel       string `toml:"LogLevel"`

	// RateLimitPerMinute caps per-client RPC throughput. Zero disables the
	// limiter.
	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`

	Auth     AuthConfig     `toml:"Auth"`
	Registry RegistryConfig `toml:"Registry"`
	Scoring  ScoringConfig  `toml:"Scoring"`
	Vault    VaultConfig    `toml:"Vault"`
	Pricing  PricingConfig  `toml:"Pricing"`
	Genesis  []GenesisMint  `toml:"Genesis"`
	Paused   []string       `toml:"Paused"`
}

// AuthConfig controls access to the mutating RPC surface. A bearer token and
// a JWT secret may be configured together; either credential is accepted.
type AuthConfig struct {
	BearerToken string `toml:"BearerToken"`
	JWTSecret   string `toml:"JWTSecret"`
}

// RegistryConfig wires the credit registry's trust anchors.
type RegistryConfig struct {
	IssuerAddress string   `toml:"IssuerAddress"`
	StakeSymbol   string   `toml:"StakeSymbol"`
	Lenders       []string `toml:"Lenders"`
	Governance    []string `toml:"Governance"`
	Relayers      []string `toml:"Relayers"`
	AllowedChains []uint64 `toml:"AllowedChains"`
}

// ScoringConfig overrides the factor weights. Zero values fall back to the
// canonical 40/20/20/10/10 split.
type ScoringConfig struct {
	RepaymentWeight  int `toml:"RepaymentWeight"`
	CollateralWeight int `toml:"CollateralWeight"`
	SybilWeight      int `toml:"SybilWeight"`
	CrossChainWeight int `toml:"CrossChainWeight"`
	GovernanceWeight int `toml:"GovernanceWeight"`
}

// VaultConfig wires the lending vault.
type VaultConfig struct {
	LiquidityToken   string   `toml:"LiquidityToken"`
	InsurancePool    string   `toml:"InsurancePool"`
	CollateralAssets []string `toml:"CollateralAssets"`
}

// PricingConfig seeds the manual price feed.
type PricingConfig struct {
	HeartbeatSeconds uint64      `toml:"HeartbeatSeconds"`
	Feeds            []PriceFeed `toml:"Feeds"`
}

// PriceFeed is one seeded price, expressed as a decimal USD string.
type PriceFeed struct {
	Token string `toml:"Token"`
	Price string `toml:"Price"`
}

// GenesisMint credits an address with tokens at startup.
type GenesisMint struct {
	Address string `toml:"Address"`
	Symbol  string `toml:"Symbol"`
	Amount  string `toml:"Amount"`
}

// Load reads the configuration at path, creating a default file when none
// exists, and applies defaults to omitted fields.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalise fills defaults for omitted fields.
func (c *Config) Normalise() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./credit-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.Registry.StakeSymbol) == "" {
		c.Registry.StakeSymbol = "CRED"
	}
	if strings.TrimSpace(c.Vault.LiquidityToken) == "" {
		c.Vault.LiquidityToken = "CUSD"
	}
	if c.Pricing.HeartbeatSeconds == 0 {
		c.Pricing.HeartbeatSeconds = 3600
	}
	if c.RateLimitPerMinute > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 30
	}
	if c.Scoring == (ScoringConfig{}) {
		c.Scoring = ScoringConfig{
			RepaymentWeight:  40,
			CollateralWeight: 20,
			SybilWeight:      20,
			CrossChainWeight: 10,
			GovernanceWeight: 10,
		}
	}
}

// Validate rejects configurations with malformed addresses.
func (c *Config) Validate() error {
	check := func(field, value string) error {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			return fmt.Errorf("config: %s %q: %w", field, value, err)
		}
		return nil
	}
	if err := check("Registry.IssuerAddress", c.Registry.IssuerAddress); err != nil {
		return err
	}
	if err := check("Vault.InsurancePool", c.Vault.InsurancePool); err != nil {
		return err
	}
	for _, addr := range c.Registry.Lenders {
		if err := check("Registry.Lenders", addr); err != nil {
			return err
		}
	}
	for _, addr := range c.Registry.Governance {
		if err := check("Registry.Governance", addr); err != nil {
			return err
		}
	}
	for _, addr := range c.Registry.Relayers {
		if err := check("Registry.Relayers", addr); err != nil {
			return err
		}
	}
	for _, mint := range c.Genesis {
		if err := check("Genesis.Address", mint.Address); err != nil {
			return err
		}
	}
	return nil
}

// createDefault writes and returns a default configuration.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Normalise()
	cfg.Vault.CollateralAssets = []string{"WETH"}
	cfg.Pricing.Feeds = []PriceFeed{{Token: "WETH", Price: "2000"}}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
