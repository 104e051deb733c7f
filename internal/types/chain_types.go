// Package types contains shared type definitions used across multiple packages
package types

// SupportedChain represents a blockchain network supported by the aggregator
type SupportedChain string

// Supported blockchain networks
const (
	ChainEthereum  SupportedChain = "ethereum"
	ChainPolygon   SupportedChain = "polygon"
	ChainArbitrum  SupportedChain = "arbitrum"
	ChainOptimism  SupportedChain = "optimism"
	ChainAvalanche SupportedChain = "avalanche"
	ChainBSC       SupportedChain = "binance"
	ChainBase      SupportedChain = "base"
	ChainSolana    SupportedChain = "solana"
)

// IsEVM reports whether the chain uses EVM-style hex addresses.
// Wallet addresses for these chains are validated against the 0x40-hex format.
func (c SupportedChain) IsEVM() bool {
	switch c {
	case ChainEthereum, ChainPolygon, ChainArbitrum, ChainOptimism, ChainAvalanche, ChainBSC, ChainBase:
		return true
	}
	return false
}

// Provider identifies a quote source. The set is closed: connectors are
// registered in a fixed list at startup and dispatched through this identifier.
type Provider string

// Registered bridge/swap providers
const (
	ProviderWormhole  Provider = "wormhole"
	ProviderDeBridge  Provider = "debridge"
	ProviderAllbridge Provider = "allbridge"
)

// SlippageRisk is the qualitative bucket for expected price deviation
type SlippageRisk string

// Slippage risk buckets
const (
	SlippageLow    SlippageRisk = "low"
	SlippageMedium SlippageRisk = "medium"
	SlippageHigh   SlippageRisk = "high"
)
