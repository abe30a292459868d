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
	"sort"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/blinklabs-io/txbuilder/value"
)

// resolveCollateral selects pure-ADA UTxOs covering the collateral
// requirement for the given fee and populates the collateral fields of the
// build state. Any surplus above the requirement goes to a collateral
// return output unless it falls under the dust threshold
func (b *TxBuilder) resolveCollateral(st *buildState, fee uint64) error {
	st.collateral = nil
	st.collateralReturn = nil
	st.totalCollateral = 0
	// required = ceil(fee * percentage / 100)
	pct := uint64(b.pparams.CollateralPercentage)
	required := (fee*pct + 99) / 100
	if required == 0 {
		return nil
	}
	candidates, err := b.collateralCandidates(st)
	if err != nil {
		return err
	}
	// Largest first to stay within the input bound
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Output.Amount() > candidates[j].Output.Amount()
	})
	var total uint64
	maxInputs := int(b.pparams.MaxCollateralInputs)
	for _, utxo := range candidates {
		if len(st.collateral) >= maxInputs {
			break
		}
		st.collateral = append(st.collateral, utxo)
		total += utxo.Output.Amount()
		if total >= required {
			break
		}
	}
	if total < required {
		return CollateralNotFoundError{
			Required:  required,
			MaxInputs: b.pparams.MaxCollateralInputs,
		}
	}
	st.totalCollateral = required
	surplus := total - required
	if surplus > 0 {
		returnAddress := b.collateralAddress
		if returnAddress == "" {
			returnAddress = b.changeAddress
		}
		addr, err := common.NewAddress(returnAddress)
		if err != nil {
			return MissingConfigurationError{Field: "collateral address"}
		}
		returnOutput := NewOutput(addr, surplus, nil)
		minCoin, err := b.minOutputCoin(&returnOutput)
		if err != nil {
			return err
		}
		if surplus >= minCoin {
			st.collateralReturn = &returnOutput
		} else {
			// Dust surplus is forfeited on script failure instead of
			// creating a sub-minimum return output
			st.totalCollateral = total
		}
	}
	return nil
}

// collateralCandidates returns the pure-ADA UTxOs eligible as collateral,
// excluding anything already spent by the transaction
func (b *TxBuilder) collateralCandidates(
	st *buildState,
) ([]common.Utxo, error) {
	spent := map[string]bool{}
	for _, input := range st.inputs {
		spent[input.utxo.Id.String()] = true
	}
	for _, utxo := range st.selectedInputs {
		spent[utxo.Id.String()] = true
	}
	pool := b.collateralUtxos
	if len(pool) == 0 {
		if b.collateralAddress != "" && b.provider != nil {
			addr, err := common.NewAddress(b.collateralAddress)
			if err != nil {
				return nil, MissingConfigurationError{
					Field: "collateral address",
				}
			}
			pool, err = b.provider.UnspentOutputs(addr)
			if err != nil {
				return nil, err
			}
		} else {
			pool, _ = b.availablePool()
		}
	}
	var candidates []common.Utxo
	for _, utxo := range pool {
		if spent[utxo.Id.String()] {
			continue
		}
		if !value.FromOutput(utxo.Output).OnlyCoin() {
			continue
		}
		candidates = append(candidates, utxo)
	}
	return candidates, nil
}

// minOutputCoin returns the minimum lovelace an output must carry, derived
// from its serialized size
func (b *TxBuilder) minOutputCoin(output *Output) (uint64, error) {
	outputCbor, err := cbor.Encode(output)
	if err != nil {
		return 0, EncodingError{What: "output", Err: err}
	}
	return b.pparams.AdaPerUtxoByte * uint64(len(outputCbor)), nil
}
