package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type Asset struct {
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
	Symbol   string `yaml:"symbol"`
}

type AssetRegistry map[uint64]map[string]Asset

// UnknownAsset is what display code falls back to for an address that is not
// in the registry.
var UnknownAsset = Asset{Symbol: "Token", Decimals: 18}

func DefaultAssets() AssetRegistry {
	return AssetRegistry{
		BaseSepoliaChainID: {
			"WETH": {Address: "0x4200000000000000000000000000000000000006", Decimals: 18, Symbol: "WETH"},
			"USDC": {Address: "0xba50Cd2A20f6DA35D788639E581bca8d0B5d4D5f", Decimals: 6, Symbol: "USDC"},
			"USDT": {Address: "0x0a215D8ba66387DCA84B284D18c3B4ec3de6E54a", Decimals: 6, Symbol: "USDT"},
		},
	}
}

func (r AssetRegistry) BySymbol(chainID uint64, symbol string) (Asset, bool) {
	assets, ok := r[chainID]
	if !ok {
		return Asset{}, false
	}
	for key, asset := range assets {
		if strings.EqualFold(key, symbol) || strings.EqualFold(asset.Symbol, symbol) {
			return asset, true
		}
	}
	return Asset{}, false
}

func (r AssetRegistry) ByAddress(chainID uint64, address common.Address) (Asset, bool) {
	for _, asset := range r[chainID] {
		if common.HexToAddress(asset.Address) == address {
			return asset, true
		}
	}
	return Asset{}, false
}

func (r AssetRegistry) Resolve(chainID uint64, ref string) (Asset, bool) {
	ref = strings.TrimSpace(ref)
	if common.IsHexAddress(ref) {
		return r.ByAddress(chainID, common.HexToAddress(ref))
	}
	return r.BySymbol(chainID, ref)
}

func (r AssetRegistry) Display(chainID uint64, address common.Address) Asset {
	if asset, ok := r.ByAddress(chainID, address); ok {
		return asset
	}
	return UnknownAsset
}

func (r AssetRegistry) Symbols(chainID uint64) []string {
	out := make([]string, 0, len(r[chainID]))
	for key := range r[chainID] {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (r AssetRegistry) validate() error {
	for chainID, assets := range r {
		for key, asset := range assets {
			if !common.IsHexAddress(asset.Address) {
				return fmt.Errorf("assets.%d.%s: invalid address %q", chainID, key, asset.Address)
			}
			if asset.Decimals < 0 || asset.Decimals > 36 {
				return fmt.Errorf("assets.%d.%s: decimals %d out of range", chainID, key, asset.Decimals)
			}
		}
	}
	return nil
}
