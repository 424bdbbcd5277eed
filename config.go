package tokenledger

import (
	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/types"
)

// Config holds the ledger initialization parameters.
// Fields can be set programmatically via WithConfig or loaded from YAML
// configuration files (under a "tokenledger" key).
type Config struct {
	// Name is the human-readable token name (default: "ICP Token").
	Name string `json:"name" mapstructure:"name" yaml:"name"`

	// Symbol is the token ticker symbol (default: "ICPT").
	Symbol string `json:"symbol" mapstructure:"symbol" yaml:"symbol"`

	// Decimals is the number of decimal places in the token's base unit
	// (default: 8).
	Decimals uint8 `json:"decimals" mapstructure:"decimals" yaml:"decimals"`

	// InitialSupply is the supply minted to the deployer at initialization,
	// in base units (default: 10^18). It is recorded as the genesis mint,
	// sequence 1 in the transfer log. Zero means the ledger starts empty
	// and all supply enters through Mint.
	InitialSupply types.Amount `json:"initial_supply" mapstructure:"initial_supply" yaml:"initial_supply"`

	// Deployer is the identity that becomes the owner and receives the
	// initial supply. Required: Start fails without it.
	Deployer account.Identity `json:"deployer" mapstructure:"deployer" yaml:"deployer"`
}

// DefaultConfig returns a Config with the stock token parameters.
// The Deployer must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		Name:          "ICP Token",
		Symbol:        "ICPT",
		Decimals:      8,
		InitialSupply: types.MustParseAmount("1000000000000000000"),
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Deployer.IsNone() {
		return ValidationError{Field: "deployer", Message: "must not be empty"}
	}
	if c.Name == "" {
		return ValidationError{Field: "name", Message: "must not be empty"}
	}
	if c.Symbol == "" {
		return ValidationError{Field: "symbol", Message: "must not be empty"}
	}
	return nil
}
