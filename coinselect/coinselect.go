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

// Package coinselect provides pluggable coin selection strategies for the
// transaction builder.
package coinselect

import (
	"fmt"
	"sort"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/txbuilder/value"
)

// Selector chooses inputs from a UTxO pool to cover a target value.
//
// Implementations must be deterministic for a fixed order of available
// UTxOs: the builder relies on this to produce byte-identical transactions
// from identical state. The returned selection, combined with any UTxOs
// already selected, must cover the target under the ledger partial order
// (every asset class, not just lovelace).
type Selector interface {
	Select(
		available []common.Utxo,
		selected []common.Utxo,
		target value.Value,
	) (newlySelected []common.Utxo, remaining []common.Utxo, err error)
}

// InsufficientFundsError is returned when the available UTxOs cannot cover
// the target value
type InsufficientFundsError struct {
	Required value.Value
	Provided value.Value
}

func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf(
		"insufficient funds: required %s, available %s",
		e.Required.String(),
		e.Provided.String(),
	)
}

// LargestFirst selects UTxOs in descending order of lovelace, breaking ties
// by original pool order, until the cumulative selected value covers the
// target across every asset class
type LargestFirst struct{}

func (LargestFirst) Select(
	available []common.Utxo,
	selected []common.Utxo,
	target value.Value,
) ([]common.Utxo, []common.Utxo, error) {
	current := value.Sum(selected)
	if current.Covers(target) {
		remaining := make([]common.Utxo, len(available))
		copy(remaining, available)
		return nil, remaining, nil
	}
	// Stable sort preserves pool order between equal coin amounts, which
	// keeps selection deterministic
	candidates := make([]common.Utxo, len(available))
	copy(candidates, available)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Output.Amount() > candidates[j].Output.Amount()
	})
	var newlySelected []common.Utxo
	used := make(map[string]bool)
	for _, utxo := range candidates {
		if current.Covers(target) {
			break
		}
		newlySelected = append(newlySelected, utxo)
		used[utxoKey(utxo)] = true
		current = current.Add(value.FromOutput(utxo.Output))
	}
	if !current.Covers(target) {
		return nil, nil, InsufficientFundsError{
			Required: target,
			Provided: current,
		}
	}
	var remaining []common.Utxo
	for _, utxo := range available {
		if !used[utxoKey(utxo)] {
			remaining = append(remaining, utxo)
		}
	}
	return newlySelected, remaining, nil
}

func utxoKey(utxo common.Utxo) string {
	return utxo.Id.String()
}
