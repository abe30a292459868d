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
	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// Provider supplies chain data and services to the builder. The builder
// only consumes this interface; implementations typically wrap a node
// connection or an API service. All methods may block on network I/O
type Provider interface {
	// UnspentOutputs returns the current UTxOs held at an address
	UnspentOutputs(address common.Address) ([]common.Utxo, error)
	// RewardsBalance returns the withdrawable reward balance for a reward
	// (stake) address
	RewardsBalance(rewardAddress common.Address) (uint64, error)
	// EvaluateTransaction runs the scripts in a draft transaction and
	// returns the execution units consumed per redeemer
	EvaluateTransaction(txCbor []byte) (map[RedeemerKey]common.ExUnits, error)
	// SubmitTransaction submits a signed transaction and returns its hash
	SubmitTransaction(txCbor []byte) (string, error)
}
