package x402gate

import "math/big"

// ChainConfig describes a supported EVM network: its chain ID for EIP-712
// domain separation, the canonical USDC deployment, and the token's EIP-712
// domain parameters. USDC addresses verified against Circle's published
// deployments.
type ChainConfig struct {
	// Network is the x402 protocol network identifier (e.g., "base-sepolia").
	Network string

	// ChainID is the EVM chain ID used in the EIP-712 domain.
	ChainID int64

	// USDCAddress is the official Circle USDC contract address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals uint8

	// DomainName is the token contract's EIP-712 domain "name" parameter.
	DomainName string

	// DomainVersion is the token contract's EIP-712 domain "version" parameter.
	DomainVersion string

	// ExplorerTxPrefix is the block explorer URL prefix for transactions.
	ExplorerTxPrefix string
}

var (
	// Ethereum is the configuration for Ethereum mainnet.
	Ethereum = ChainConfig{
		Network:          "ethereum",
		ChainID:          1,
		USDCAddress:      "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Decimals:         6,
		DomainName:       "USD Coin",
		DomainVersion:    "2",
		ExplorerTxPrefix: "https://etherscan.io/tx/",
	}

	// Sepolia is the configuration for the Sepolia testnet.
	Sepolia = ChainConfig{
		Network:          "sepolia",
		ChainID:          11155111,
		USDCAddress:      "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		Decimals:         6,
		DomainName:       "USDC",
		DomainVersion:    "2",
		ExplorerTxPrefix: "https://sepolia.etherscan.io/tx/",
	}

	// Base is the configuration for Base mainnet.
	Base = ChainConfig{
		Network:          "base",
		ChainID:          8453,
		USDCAddress:      "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:         6,
		DomainName:       "USD Coin",
		DomainVersion:    "2",
		ExplorerTxPrefix: "https://basescan.org/tx/",
	}

	// BaseSepolia is the configuration for the Base Sepolia testnet.
	BaseSepolia = ChainConfig{
		Network:          "base-sepolia",
		ChainID:          84532,
		USDCAddress:      "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:         6,
		DomainName:       "USDC",
		DomainVersion:    "2",
		ExplorerTxPrefix: "https://sepolia.basescan.org/tx/",
	}

	// Polygon is the configuration for Polygon PoS mainnet.
	Polygon = ChainConfig{
		Network:          "polygon",
		ChainID:          137,
		USDCAddress:      "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:         6,
		DomainName:       "USD Coin",
		DomainVersion:    "2",
		ExplorerTxPrefix: "https://polygonscan.com/tx/",
	}

	// Arbitrum is the configuration for Arbitrum One.
	Arbitrum = ChainConfig{
		Network:          "arbitrum",
		ChainID:          42161,
		USDCAddress:      "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		Decimals:         6,
		DomainName:       "USD Coin",
		DomainVersion:    "2",
		ExplorerTxPrefix: "https://arbiscan.io/tx/",
	}

	// Optimism is the configuration for OP Mainnet.
	Optimism = ChainConfig{
		Network:          "optimism",
		ChainID:          10,
		USDCAddress:      "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
		Decimals:         6,
		DomainName:       "USD Coin",
		DomainVersion:    "2",
		ExplorerTxPrefix: "https://optimistic.etherscan.io/tx/",
	}
)

// networks indexes the supported chain configurations by network identifier.
var networks = map[string]ChainConfig{
	Ethereum.Network:    Ethereum,
	Sepolia.Network:     Sepolia,
	Base.Network:        Base,
	BaseSepolia.Network: BaseSepolia,
	Polygon.Network:     Polygon,
	Arbitrum.Network:    Arbitrum,
	Optimism.Network:    Optimism,
}

// NetworkConfig returns the chain configuration for a network identifier.
func NetworkConfig(network string) (ChainConfig, bool) {
	cfg, ok := networks[network]
	return cfg, ok
}

// ChainID resolves a network identifier to its EVM chain ID.
// Returns ErrUnsupportedNetwork for networks outside the table.
func ChainID(network string) (*big.Int, error) {
	cfg, ok := networks[network]
	if !ok {
		return nil, ErrUnsupportedNetwork
	}
	return big.NewInt(cfg.ChainID), nil
}

// IsSupportedNetwork reports whether the network identifier is recognized.
func IsSupportedNetwork(network string) bool {
	_, ok := networks[network]
	return ok
}

// ExplorerTxURL returns a block explorer link for a transaction hash, or the
// empty string when the network is unknown.
func ExplorerTxURL(network, txHash string) string {
	cfg, ok := networks[network]
	if !ok {
		return ""
	}
	return cfg.ExplorerTxPrefix + txHash
}

// USDCPaymentMethod builds a PaymentMethod priced in USDC on the given chain.
// The amount is in atomic units (6 decimals); minimum defaults to the maximum
// for exact-price resources.
func USDCPaymentMethod(chain ChainConfig, recipient, amount string) PaymentMethod {
	return PaymentMethod{
		Scheme:        "exact",
		Network:       chain.Network,
		Asset:         chain.USDCAddress,
		Recipient:     recipient,
		MaximumAmount: amount,
		MinimumAmount: amount,
		TimeoutMillis: 300_000,
		Extra: map[string]interface{}{
			"name":    chain.DomainName,
			"version": chain.DomainVersion,
		},
	}
}
