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

package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/blinklabs-io/txbuilder/coinselect"
	"github.com/blinklabs-io/txbuilder/value"
)

// balance selects inputs and iterates fee estimation until the fee implied
// by the serialized size matches the fee the transaction pays. The loop
// re-resolves change and collateral on every pass so their bytes are part
// of the converged size
func (b *TxBuilder) balance(st *buildState) error {
	st.selectedInputs = nil
	st.changeOutput = nil
	st.collateral = nil
	st.collateralReturn = nil
	st.totalCollateral = 0

	// Fixed value flows that do not change across iterations
	var outputsValue value.Value
	for i := range st.outputs {
		outputsValue = outputsValue.Add(value.FromOutput(&st.outputs[i]))
	}
	var deposits, refunds uint64
	for _, cert := range st.certs {
		if cert.deposit > 0 {
			deposits += uint64(cert.deposit)
		} else {
			// #nosec G115
			refunds += uint64(-cert.deposit)
		}
	}
	for _, proposal := range st.proposals {
		deposits += proposal.Deposit
	}
	var withdrawals uint64
	for _, withdrawal := range st.withdrawals {
		withdrawals += withdrawal.amount
	}
	mintPos, mintNeg := splitMint(st.mintMultiAsset())
	var explicitValue value.Value
	explicitUtxos := make([]common.Utxo, 0, len(st.inputs))
	for _, input := range st.inputs {
		explicitValue = explicitValue.Add(value.FromOutput(input.utxo.Output))
		explicitUtxos = append(explicitUtxos, input.utxo)
	}
	nonUtxoCredits := value.NewValue(withdrawals + refunds).AddAssets(mintPos)
	credits := explicitValue.Add(nonUtxoCredits)

	var pool []common.Utxo
	poolFetched := false
	scripted := st.hasPlutusScripts()
	fee := st.fee
	if fee < b.feeFloor {
		fee = b.feeFloor
	}
	var extraChangeFloor uint64

	for iter := 0; iter < b.maxFeeIterations; iter++ {
		needed := outputsValue.
			Add(value.NewValue(deposits + b.donation + fee + extraChangeFloor)).
			AddAssets(mintNeg)
		st.selectedInputs = nil
		if !credits.Covers(needed) {
			if !poolFetched {
				var err error
				pool, err = b.availablePool()
				if err != nil {
					return err
				}
				pool = excludeUtxos(pool, explicitUtxos)
				poolFetched = true
			}
			selected, _, err := b.selector.Select(
				pool,
				explicitUtxos,
				needed.Sub(nonUtxoCredits),
			)
			if err != nil {
				return err
			}
			st.selectedInputs = selected
		}
		totalIn := credits.Add(value.Sum(st.selectedInputs))
		if !totalIn.Covers(needed) {
			return coinselect.InsufficientFundsError{
				Required: needed,
				Provided: totalIn,
			}
		}
		change := totalIn.Sub(needed).Add(value.NewValue(extraChangeFloor))

		var dustAbsorbed uint64
		st.changeOutput = nil
		if !change.IsZero() {
			if b.changeAddress == "" {
				return MissingConfigurationError{Field: "change address"}
			}
			changeAddr, err := common.NewAddress(b.changeAddress)
			if err != nil {
				return fmt.Errorf(
					"invalid change address %q: %w",
					b.changeAddress,
					err,
				)
			}
			changeOutput := NewOutput(changeAddr, change.Coin, change.Assets)
			minCoin, err := b.minOutputCoin(&changeOutput)
			if err != nil {
				return err
			}
			switch {
			case change.OnlyCoin() && change.Coin < minCoin:
				// Dust: cheaper to burn as fee than to carry an output
				dustAbsorbed = change.Coin
			case change.Coin < minCoin:
				// Change carries assets and must be an output; select
				// enough extra coin to make it valid
				extraChangeFloor += minCoin - change.Coin
				continue
			default:
				st.changeOutput = &changeOutput
			}
		}

		if scripted {
			// Absorbed dust is part of the fee the transaction pays, so the
			// collateral requirement must cover it too
			if err := b.resolveCollateral(st, fee+dustAbsorbed); err != nil {
				return err
			}
		}

		draft, err := b.buildTransaction(st, fee+dustAbsorbed, true)
		if err != nil {
			return err
		}
		size := len(draft.Cbor())
		newFee := b.minFee(
			size,
			st.exUnits,
			refScriptSize(explicitUtxos, st.selectedInputs, st.referenceInputs),
		)
		if newFee <= fee {
			st.fee = fee + dustAbsorbed
			return nil
		}
		fee = newFee
	}
	return FeeCalculationError{Iterations: b.maxFeeIterations, LastFee: fee}
}

// availablePool returns the UTxO pool used for automatic input selection
func (b *TxBuilder) availablePool() ([]common.Utxo, error) {
	if b.availableUtxos != nil {
		return b.availableUtxos, nil
	}
	if b.provider != nil && b.changeAddress != "" {
		addr, err := common.NewAddress(b.changeAddress)
		if err != nil {
			return nil, fmt.Errorf(
				"invalid change address %q: %w",
				b.changeAddress,
				err,
			)
		}
		return b.provider.UnspentOutputs(addr)
	}
	return nil, MissingConfigurationError{Field: "available UTxOs"}
}

// excludeUtxos filters out UTxOs already present in the exclusion list
func excludeUtxos(pool []common.Utxo, exclude []common.Utxo) []common.Utxo {
	if len(exclude) == 0 {
		return pool
	}
	excluded := make(map[string]bool, len(exclude))
	for _, utxo := range exclude {
		excluded[utxo.Id.String()] = true
	}
	ret := make([]common.Utxo, 0, len(pool))
	for _, utxo := range pool {
		if excluded[utxo.Id.String()] {
			continue
		}
		ret = append(ret, utxo)
	}
	return ret
}

// splitMint separates a mint into minted assets (credited to the input
// side) and burned assets (owed on the output side, as positive amounts)
func splitMint(
	mint *common.MultiAsset[common.MultiAssetTypeMint],
) (
	*common.MultiAsset[common.MultiAssetTypeOutput],
	*common.MultiAsset[common.MultiAssetTypeOutput],
) {
	if mint == nil {
		return nil, nil
	}
	posMap := map[common.Blake2b224]map[cbor.ByteString]*big.Int{}
	negMap := map[common.Blake2b224]map[cbor.ByteString]*big.Int{}
	for _, policyId := range mint.Policies() {
		for _, assetName := range mint.Assets(policyId) {
			amount := mint.Asset(policyId, assetName)
			if amount == nil || amount.Sign() == 0 {
				continue
			}
			target := posMap
			tmpAmount := new(big.Int).Set(amount)
			if amount.Sign() < 0 {
				target = negMap
				tmpAmount.Neg(tmpAmount)
			}
			if target[policyId] == nil {
				target[policyId] = map[cbor.ByteString]*big.Int{}
			}
			target[policyId][cbor.NewByteString(assetName)] = tmpAmount
		}
	}
	var pos, neg *common.MultiAsset[common.MultiAssetTypeOutput]
	if len(posMap) > 0 {
		tmpPos := common.NewMultiAsset[common.MultiAssetTypeOutput](posMap)
		pos = &tmpPos
	}
	if len(negMap) > 0 {
		tmpNeg := common.NewMultiAsset[common.MultiAssetTypeOutput](negMap)
		neg = &tmpNeg
	}
	return pos, neg
}
