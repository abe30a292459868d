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
	"errors"
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// Evaluator measures the execution units consumed by the Plutus scripts in
// a draft transaction. The resolved UTxOs cover the transaction's spent,
// reference, and collateral inputs
type Evaluator interface {
	Evaluate(
		tx *Transaction,
		resolved []common.Utxo,
	) (map[RedeemerKey]common.ExUnits, error)
}

// ProviderEvaluator delegates script evaluation to the provider, which
// typically forwards the draft transaction to a node or API service
type ProviderEvaluator struct {
	Provider Provider
}

func (e ProviderEvaluator) Evaluate(
	tx *Transaction,
	resolved []common.Utxo,
) (map[RedeemerKey]common.ExUnits, error) {
	return e.Provider.EvaluateTransaction(tx.Cbor())
}

// evaluate runs the evaluator against a draft of the current build state
// and stores the measured execution units for the next balance pass
func (b *TxBuilder) evaluate(st *buildState) error {
	draft, err := b.buildTransaction(st, st.fee, true)
	if err != nil {
		return err
	}
	resolved := make(
		[]common.Utxo,
		0,
		len(st.inputs)+len(st.selectedInputs)+
			len(st.referenceInputs)+len(st.collateral),
	)
	for _, input := range st.inputs {
		resolved = append(resolved, input.utxo)
	}
	resolved = append(resolved, st.selectedInputs...)
	resolved = append(resolved, st.referenceInputs...)
	resolved = append(resolved, st.collateral...)
	exUnits, err := b.evaluator.Evaluate(draft, resolved)
	if err != nil {
		return ScriptEvaluationError{Err: err}
	}
	var totalMem, totalSteps int64
	for _, units := range exUnits {
		totalMem += units.Memory
		totalSteps += units.Steps
	}
	maxUnits := b.pparams.MaxTxExUnits
	if (maxUnits.Memory > 0 && totalMem > maxUnits.Memory) ||
		(maxUnits.Steps > 0 && totalSteps > maxUnits.Steps) {
		return ScriptEvaluationError{
			Err: fmt.Errorf(
				"execution units %d mem / %d steps exceed transaction limit %d mem / %d steps",
				totalMem,
				totalSteps,
				maxUnits.Memory,
				maxUnits.Steps,
			),
		}
	}
	if len(exUnits) == 0 {
		return ScriptEvaluationError{
			Err: errors.New("evaluator returned no execution units"),
		}
	}
	st.exUnits = exUnits
	return nil
}
