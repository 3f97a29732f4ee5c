package types

import (
	"fmt"
	"math/big"
	"strings"
)

// AssetKind distinguishes chain-native denominations from contract-backed
// fungible tokens.
type AssetKind uint8

const (
	AssetNative AssetKind = iota
	AssetToken
)

// Asset is a tagged reference to a fungible asset: either a native denom or a
// token contract. The zero value is not a valid asset.
type Asset struct {
	Kind     AssetKind
	Denom    string
	Contract Address
}

// NativeAsset builds an asset reference for a native denomination.
func NativeAsset(denom string) Asset {
	return Asset{Kind: AssetNative, Denom: strings.TrimSpace(denom)}
}

// TokenAsset builds an asset reference for a token contract.
func TokenAsset(contract Address) Asset {
	return Asset{Kind: AssetToken, Contract: contract}
}

// ID returns a stable string identifier usable as a storage key component.
func (a Asset) ID() string {
	if a.Kind == AssetToken {
		return "token:" + a.Contract.Hex()
	}
	return "native:" + a.Denom
}

func (a Asset) String() string {
	if a.Kind == AssetToken {
		return a.Contract.Hex()
	}
	return a.Denom
}

// IsNative reports whether the asset is a native denomination.
func (a Asset) IsNative() bool { return a.Kind == AssetNative }

// Coin pairs an asset reference with an amount.
type Coin struct {
	Asset  Asset
	Amount *big.Int
}

// NewCoin builds a coin with its own copy of the amount.
func NewCoin(asset Asset, amount *big.Int) Coin {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return Coin{Asset: asset, Amount: new(big.Int).Set(amount)}
}

func (c Coin) String() string {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	return fmt.Sprintf("%s%s", amount, c.Asset)
}

// IsZero reports whether the coin carries no value.
func (c Coin) IsZero() bool {
	return c.Amount == nil || c.Amount.Sign() == 0
}
