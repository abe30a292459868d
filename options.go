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
	"github.com/blinklabs-io/gouroboros/ledger/conway"

	"github.com/blinklabs-io/txbuilder/coinselect"
)

type TxBuilderOptionFunc func(*TxBuilder)

func WithProtocolParameters(
	pparams conway.ConwayProtocolParameters,
) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.pparams = &pparams
	}
}

func WithProvider(provider Provider) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.provider = provider
	}
}

func WithCoinSelector(selector coinselect.Selector) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.selector = selector
	}
}

func WithEvaluator(evaluator Evaluator) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.evaluator = evaluator
	}
}

func WithNetworkId(networkId uint8) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.networkId = networkId
	}
}

// WithChangeAddress sets the address that receives any leftover value after
// balancing. A change address is required whenever inputs are selected
// automatically
func WithChangeAddress(address string) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.changeAddress = address
	}
}

// WithCollateralAddress sets the address whose pure-ADA UTxOs are used for
// collateral. Defaults to the change address
func WithCollateralAddress(address string) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.collateralAddress = address
	}
}

// WithAvailableUtxos provides the UTxO pool for input selection directly,
// bypassing the provider lookup for the change address
func WithAvailableUtxos(utxos []common.Utxo) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.availableUtxos = utxos
	}
}

// WithCollateralUtxos provides candidate collateral UTxOs directly,
// bypassing the provider lookup for the collateral address
func WithCollateralUtxos(utxos []common.Utxo) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.collateralUtxos = utxos
	}
}

func WithSlotConfig(slotConfig SlotConfig) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.slotConfig = slotConfig
	}
}

// WithMinFee sets a lower bound on the fee regardless of the estimate
func WithMinFee(fee uint64) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.feeFloor = fee
	}
}

// WithMaxFeeIterations overrides the bound on fee balancing iterations
func WithMaxFeeIterations(iterations int) TxBuilderOptionFunc {
	return func(b *TxBuilder) {
		b.maxFeeIterations = iterations
	}
}
