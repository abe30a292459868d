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
	"math/big"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// minFee computes the minimum fee for a serialized transaction of the given
// size: the linear size fee, plus execution unit costs, plus the reference
// script byte cost. Pure function of its arguments
func (b *TxBuilder) minFee(
	txSize int,
	exUnits map[RedeemerKey]common.ExUnits,
	refScriptBytes int,
) uint64 {
	fee := common.CalculateMinFee(txSize, b.pparams.MinFeeA, b.pparams.MinFeeB)
	if len(exUnits) > 0 {
		var totalMem, totalSteps int64
		for _, units := range exUnits {
			totalMem += units.Memory
			totalSteps += units.Steps
		}
		fee += ratCeilMul(b.pparams.ExecutionCosts.MemPrice, totalMem)
		fee += ratCeilMul(b.pparams.ExecutionCosts.StepPrice, totalSteps)
	}
	if refScriptBytes > 0 {
		fee += ratCeilMul(
			b.pparams.MinFeeRefScriptCostPerByte,
			int64(refScriptBytes),
		)
	}
	return fee
}

// ratCeilMul multiplies n by a rational price and rounds up
func ratCeilMul(price *cbor.Rat, n int64) uint64 {
	if price == nil || n <= 0 {
		return 0
	}
	num := new(big.Int).Mul(price.Num(), big.NewInt(n))
	den := price.Denom()
	if den.Sign() <= 0 {
		return 0
	}
	// Round up
	num.Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	num.Div(num, den)
	return num.Uint64()
}

// refScriptSize sums the serialized script bytes referenced by the
// transaction's spent and reference inputs
func refScriptSize(utxoSets ...[]common.Utxo) int {
	var total int
	for _, utxos := range utxoSets {
		for _, utxo := range utxos {
			var scriptRef *cbor.Tag
			switch o := utxo.Output.(type) {
			case *Output:
				scriptRef = o.ScriptRef
			case *babbage.BabbageTransactionOutput:
				scriptRef = o.ScriptRef
			}
			if scriptRef == nil {
				continue
			}
			if content, ok := scriptRef.Content.([]byte); ok {
				total += len(content)
			}
		}
	}
	return total
}
