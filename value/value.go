// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package value provides arithmetic over multi-asset ledger values and
// unspent transaction outputs. Values are treated as immutable: every
// operation returns a new Value and never modifies its operands.
package value

import (
	"fmt"
	"math/big"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// Value represents an amount of lovelace plus zero or more native assets
type Value struct {
	Coin   uint64
	Assets *common.MultiAsset[common.MultiAssetTypeOutput]
}

// NewValue creates a Value from a lovelace amount with no native assets
func NewValue(coin uint64) Value {
	return Value{Coin: coin}
}

// NewValueWithAssets creates a Value from a lovelace amount and a set of
// native assets. The asset set is copied, so later changes to the source
// do not affect the returned Value
func NewValueWithAssets(
	coin uint64,
	assets *common.MultiAsset[common.MultiAssetTypeOutput],
) Value {
	return Value{
		Coin:   coin,
		Assets: copyAssets(assets),
	}
}

// FromOutput creates a Value from the amount and assets of a transaction output
func FromOutput(output common.TransactionOutput) Value {
	if output == nil {
		return Value{}
	}
	return NewValueWithAssets(output.Amount(), output.Assets())
}

// Sum returns the total value held in the provided UTxOs
func Sum(utxos []common.Utxo) Value {
	ret := Value{}
	for _, utxo := range utxos {
		ret = ret.Add(FromOutput(utxo.Output))
	}
	return ret
}

// Add returns the component-wise sum of two values
func (v Value) Add(other Value) Value {
	ret := Value{
		Coin:   v.Coin + other.Coin,
		Assets: copyAssets(v.Assets),
	}
	if other.Assets != nil {
		if ret.Assets == nil {
			ret.Assets = copyAssets(other.Assets)
		} else {
			ret.Assets.Add(other.Assets)
		}
	}
	return normalize(ret)
}

// AddAssets returns a copy of the value with the provided assets added.
// Negative asset quantities (burns) reduce the corresponding asset
func (v Value) AddAssets(
	assets *common.MultiAsset[common.MultiAssetTypeMint],
) Value {
	ret := Value{
		Coin:   v.Coin,
		Assets: copyAssets(v.Assets),
	}
	if assets != nil {
		if ret.Assets == nil {
			ret.Assets = copyAssets(assets)
		} else {
			ret.Assets.Add(assets)
		}
	}
	return normalize(ret)
}

// Sub returns the component-wise difference of two values. The coin
// component and any asset quantities are clamped at zero, so callers that
// need an exact difference must first check coverage with Covers
func (v Value) Sub(other Value) Value {
	ret := Value{
		Assets: copyAssets(v.Assets),
	}
	if v.Coin > other.Coin {
		ret.Coin = v.Coin - other.Coin
	}
	if other.Assets != nil {
		if ret.Assets == nil {
			ret.Assets = emptyAssets()
		}
		ret.Assets.Add(negateAssets(other.Assets))
	}
	return normalize(clampAssets(ret))
}

// Covers returns true when the value dominates the other value under the
// ledger partial order: the coin amount and every asset class must be at
// least as large as in the other value
func (v Value) Covers(other Value) bool {
	if v.Coin < other.Coin {
		return false
	}
	if other.Assets == nil {
		return true
	}
	for _, policyId := range other.Assets.Policies() {
		for _, assetName := range other.Assets.Assets(policyId) {
			required := other.Assets.Asset(policyId, assetName)
			if required == nil || required.Sign() <= 0 {
				continue
			}
			var available *big.Int
			if v.Assets != nil {
				available = v.Assets.Asset(policyId, assetName)
			}
			if available == nil || available.Cmp(required) < 0 {
				return false
			}
		}
	}
	return true
}

// Missing returns the component-wise shortfall of the value against a
// target, clamped at zero. The result is zero when the value covers the
// target
func (v Value) Missing(target Value) Value {
	ret := Value{}
	if target.Coin > v.Coin {
		ret.Coin = target.Coin - v.Coin
	}
	if target.Assets != nil {
		missing := map[common.Blake2b224]map[cbor.ByteString]*big.Int{}
		for _, policyId := range target.Assets.Policies() {
			for _, assetName := range target.Assets.Assets(policyId) {
				required := target.Assets.Asset(policyId, assetName)
				if required == nil || required.Sign() <= 0 {
					continue
				}
				var available *big.Int
				if v.Assets != nil {
					available = v.Assets.Asset(policyId, assetName)
				}
				if available == nil {
					available = new(big.Int)
				}
				if available.Cmp(required) >= 0 {
					continue
				}
				if _, ok := missing[policyId]; !ok {
					missing[policyId] = map[cbor.ByteString]*big.Int{}
				}
				missing[policyId][cbor.NewByteString(assetName)] = new(
					big.Int,
				).Sub(required, available)
			}
		}
		if len(missing) > 0 {
			tmpAssets := common.NewMultiAsset(missing)
			ret.Assets = &tmpAssets
		}
	}
	return ret
}

// IsZero returns true when the value holds no lovelace and no assets
func (v Value) IsZero() bool {
	if v.Coin != 0 {
		return false
	}
	return !hasAssets(v.Assets)
}

// OnlyCoin returns true when the value holds no native assets. Collateral
// inputs are required to satisfy this
func (v Value) OnlyCoin() bool {
	return !hasAssets(v.Assets)
}

func (v Value) String() string {
	if !hasAssets(v.Assets) {
		return fmt.Sprintf("%d lovelace", v.Coin)
	}
	return fmt.Sprintf("%d lovelace + %s", v.Coin, v.Assets.String())
}

func emptyAssets() *common.MultiAsset[common.MultiAssetTypeOutput] {
	ret := common.NewMultiAsset[common.MultiAssetTypeOutput](nil)
	return &ret
}

func copyAssets(
	src *common.MultiAsset[common.MultiAssetTypeOutput],
) *common.MultiAsset[common.MultiAssetTypeOutput] {
	if src == nil {
		return nil
	}
	ret := emptyAssets()
	ret.Add(src)
	return ret
}

func negateAssets(
	src *common.MultiAsset[common.MultiAssetTypeOutput],
) *common.MultiAsset[common.MultiAssetTypeOutput] {
	tmpData := map[common.Blake2b224]map[cbor.ByteString]*big.Int{}
	for _, policyId := range src.Policies() {
		for _, assetName := range src.Assets(policyId) {
			amount := src.Asset(policyId, assetName)
			if amount == nil {
				continue
			}
			if _, ok := tmpData[policyId]; !ok {
				tmpData[policyId] = map[cbor.ByteString]*big.Int{}
			}
			tmpData[policyId][cbor.NewByteString(assetName)] = new(
				big.Int,
			).Neg(amount)
		}
	}
	ret := common.NewMultiAsset(tmpData)
	return &ret
}

// clampAssets drops asset quantities that went negative during subtraction
func clampAssets(v Value) Value {
	if v.Assets == nil {
		return v
	}
	tmpData := map[common.Blake2b224]map[cbor.ByteString]*big.Int{}
	for _, policyId := range v.Assets.Policies() {
		for _, assetName := range v.Assets.Assets(policyId) {
			amount := v.Assets.Asset(policyId, assetName)
			if amount == nil || amount.Sign() <= 0 {
				continue
			}
			if _, ok := tmpData[policyId]; !ok {
				tmpData[policyId] = map[cbor.ByteString]*big.Int{}
			}
			tmpData[policyId][cbor.NewByteString(assetName)] = new(
				big.Int,
			).Set(amount)
		}
	}
	tmpAssets := common.NewMultiAsset(tmpData)
	v.Assets = &tmpAssets
	return v
}

// normalize replaces an empty asset set with nil so that values holding
// only lovelace compare and serialize consistently
func normalize(v Value) Value {
	if !hasAssets(v.Assets) {
		v.Assets = nil
	}
	return v
}

func hasAssets(
	assets *common.MultiAsset[common.MultiAssetTypeOutput],
) bool {
	if assets == nil {
		return false
	}
	for _, policyId := range assets.Policies() {
		for _, assetName := range assets.Assets(policyId) {
			amount := assets.Asset(policyId, assetName)
			if amount != nil && amount.Sign() != 0 {
				return true
			}
		}
	}
	return false
}
