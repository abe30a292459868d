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
	"time"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/conway"
	"github.com/blinklabs-io/plutigo/data"

	"github.com/blinklabs-io/txbuilder/coinselect"
	"github.com/blinklabs-io/txbuilder/value"
)

const defaultMaxFeeIterations = 20

// TxBuilder accumulates transaction intents and produces a balanced
// Conway-era transaction. Mutators never fail: malformed arguments are
// recorded and surfaced together when Build runs. A TxBuilder is not safe
// for concurrent use
type TxBuilder struct {
	pparams           *conway.ConwayProtocolParameters
	provider          Provider
	selector          coinselect.Selector
	evaluator         Evaluator
	networkId         uint8
	changeAddress     string
	collateralAddress string
	availableUtxos    []common.Utxo
	collateralUtxos   []common.Utxo
	slotConfig        SlotConfig
	maxFeeIterations  int
	feeFloor          uint64
	intents           []intent
	validFromSlot     *uint64
	validToSlot       *uint64
	donation          uint64
	treasuryValue     *int64
}

func New(options ...TxBuilderOptionFunc) *TxBuilder {
	b := &TxBuilder{
		selector:         coinselect.LargestFirst{},
		slotConfig:       SlotConfigMainnet,
		maxFeeIterations: defaultMaxFeeIterations,
	}
	for _, option := range options {
		option(b)
	}
	if b.evaluator == nil && b.provider != nil {
		b.evaluator = ProviderEvaluator{Provider: b.provider}
	}
	return b
}

func (b *TxBuilder) addIntent(i intent) *TxBuilder {
	b.intents = append(b.intents, i)
	return b
}

// PayToAddress adds an output paying the given value to an address
func (b *TxBuilder) PayToAddress(address string, v value.Value) *TxBuilder {
	return b.addIntent(sendValueIntent{address: address, value: v})
}

// PayToScript adds an output locking the given value at a script address
// with an inline datum
func (b *TxBuilder) PayToScript(
	scriptAddress string,
	v value.Value,
	datum data.PlutusData,
) *TxBuilder {
	return b.addIntent(lockValueIntent{
		scriptAddress: scriptAddress,
		value:         v,
		datum:         datum,
	})
}

// AddInput spends a specific UTxO
func (b *TxBuilder) AddInput(utxo common.Utxo) *TxBuilder {
	return b.addIntent(addInputIntent{utxo: utxo})
}

// AddScriptInput spends a script-locked UTxO with the given redeemer. The
// datum may be nil when the UTxO carries an inline datum
func (b *TxBuilder) AddScriptInput(
	utxo common.Utxo,
	redeemer data.PlutusData,
	datum data.PlutusData,
) *TxBuilder {
	return b.addIntent(addInputIntent{
		utxo:     utxo,
		redeemer: redeemer,
		datum:    datum,
	})
}

// AddOutput adds a pre-constructed output verbatim
func (b *TxBuilder) AddOutput(output Output) *TxBuilder {
	return b.addIntent(addOutputIntent{output: output})
}

// AddReferenceInput references a UTxO without spending it
func (b *TxBuilder) AddReferenceInput(utxo common.Utxo) *TxBuilder {
	return b.addIntent(addReferenceInputIntent{utxo: utxo})
}

// MintAssets mints (positive amount) or burns (negative amount) an asset.
// The redeemer may be nil for native script policies
func (b *TxBuilder) MintAssets(
	policyId string,
	assetName []byte,
	amount int64,
	redeemer data.PlutusData,
) *TxBuilder {
	return b.addIntent(mintBurnIntent{
		policyId:  policyId,
		assetName: assetName,
		amount:    amount,
		redeemer:  redeemer,
	})
}

// AddCertificate adds a pre-constructed certificate verbatim
func (b *TxBuilder) AddCertificate(
	cert common.Certificate,
	redeemer data.PlutusData,
) *TxBuilder {
	return b.addIntent(certificateIntent{cert: cert, redeemer: redeemer})
}

// Withdraw withdraws rewards for a reward address. A nil amount withdraws
// the full balance reported by the provider
func (b *TxBuilder) Withdraw(
	rewardAddress string,
	amount *uint64,
	redeemer data.PlutusData,
) *TxBuilder {
	return b.addIntent(withdrawalIntent{
		rewardAddress: rewardAddress,
		amount:        amount,
		redeemer:      redeemer,
	})
}

// RegisterRewardAddress registers a stake credential, paying the key
// deposit from the protocol parameters
func (b *TxBuilder) RegisterRewardAddress(rewardAddress string) *TxBuilder {
	return b.addIntent(registerRewardAddressIntent{rewardAddress: rewardAddress})
}

// DeregisterRewardAddress deregisters a stake credential, reclaiming its
// deposit
func (b *TxBuilder) DeregisterRewardAddress(
	rewardAddress string,
	redeemer data.PlutusData,
) *TxBuilder {
	return b.addIntent(deregisterRewardAddressIntent{
		rewardAddress: rewardAddress,
		redeemer:      redeemer,
	})
}

// DelegateStake delegates a stake credential to a pool
func (b *TxBuilder) DelegateStake(
	rewardAddress string,
	poolId string,
	redeemer data.PlutusData,
) *TxBuilder {
	return b.addIntent(delegateStakeIntent{
		rewardAddress: rewardAddress,
		poolId:        poolId,
		redeemer:      redeemer,
	})
}

// DelegateVote delegates a stake credential's voting power to a DRep
func (b *TxBuilder) DelegateVote(
	rewardAddress string,
	drep common.Drep,
	redeemer data.PlutusData,
) *TxBuilder {
	return b.addIntent(delegateVoteIntent{
		rewardAddress: rewardAddress,
		drep:          drep,
		redeemer:      redeemer,
	})
}

// RegisterDRep registers a DRep credential (a hex key or script hash),
// paying the DRep deposit
func (b *TxBuilder) RegisterDRep(
	credential string,
	anchor *common.GovAnchor,
) *TxBuilder {
	return b.addIntent(registerDRepIntent{credential: credential, anchor: anchor})
}

// UpdateDRep updates a registered DRep's anchor
func (b *TxBuilder) UpdateDRep(
	credential string,
	anchor *common.GovAnchor,
) *TxBuilder {
	return b.addIntent(updateDRepIntent{credential: credential, anchor: anchor})
}

// DeregisterDRep deregisters a DRep credential, reclaiming its deposit
func (b *TxBuilder) DeregisterDRep(credential string) *TxBuilder {
	return b.addIntent(deregisterDRepIntent{credential: credential})
}

// Vote casts a governance vote
func (b *TxBuilder) Vote(
	voter common.Voter,
	actionId common.GovActionId,
	procedure common.VotingProcedure,
	redeemer data.PlutusData,
) *TxBuilder {
	return b.addIntent(voteIntent{
		voter:     voter,
		actionId:  actionId,
		procedure: procedure,
		redeemer:  redeemer,
	})
}

// Propose submits a governance proposal. A zero deposit on the procedure is
// filled in from the protocol parameters' governance action deposit
func (b *TxBuilder) Propose(procedure common.ProposalProcedure) *TxBuilder {
	return b.addIntent(proposalIntent{procedure: procedure})
}

// AttachScript includes a script in the witness set
func (b *TxBuilder) AttachScript(script common.Script) *TxBuilder {
	return b.addIntent(attachScriptIntent{script: script})
}

// AttachDatum includes a datum in the witness set
func (b *TxBuilder) AttachDatum(datum data.PlutusData) *TxBuilder {
	return b.addIntent(attachDatumIntent{datum: datum})
}

// SetMetadata sets transaction metadata under the given tag
func (b *TxBuilder) SetMetadata(tag uint64, metadata any) *TxBuilder {
	return b.addIntent(setMetadataIntent{tag: tag, value: metadata})
}

// AddRequiredSigner adds a required signer key hash (hex)
func (b *TxBuilder) AddRequiredSigner(keyHash string) *TxBuilder {
	return b.addIntent(addSignerIntent{keyHash: keyHash})
}

// PadSigners reserves witness space for additional signers beyond those
// the builder can infer, so the fee covers them
func (b *TxBuilder) PadSigners(count int) *TxBuilder {
	return b.addIntent(padSignersIntent{count: count})
}

// SetDonation donates to the treasury
func (b *TxBuilder) SetDonation(amount uint64) *TxBuilder {
	b.donation = amount
	return b
}

// SetCurrentTreasuryValue asserts the current treasury value
func (b *TxBuilder) SetCurrentTreasuryValue(amount int64) *TxBuilder {
	b.treasuryValue = &amount
	return b
}

func (b *TxBuilder) ValidFromSlot(slot uint64) *TxBuilder {
	b.validFromSlot = &slot
	return b
}

func (b *TxBuilder) ValidToSlot(slot uint64) *TxBuilder {
	b.validToSlot = &slot
	return b
}

func (b *TxBuilder) ValidFromTime(t time.Time) *TxBuilder {
	return b.ValidFromSlot(b.slotConfig.SlotFromTime(t))
}

func (b *TxBuilder) ValidToTime(t time.Time) *TxBuilder {
	return b.ValidToSlot(b.slotConfig.SlotFromTime(t))
}

// Build resolves all recorded intents, selects inputs, balances the fee,
// attaches collateral, and assembles the final transaction. All deferred
// intent errors are reported together
func (b *TxBuilder) Build() (*Transaction, error) {
	if b.pparams == nil {
		return nil, MissingConfigurationError{Field: "protocol parameters"}
	}
	st, err := b.resolve()
	if err != nil {
		return nil, err
	}
	scripted := st.hasPlutusScripts()
	if scripted && b.evaluator == nil {
		// Without measured execution units the redeemers and fee would be
		// wrong on chain
		return nil, MissingConfigurationError{Field: "evaluator"}
	}
	if err := b.balance(st); err != nil {
		return nil, err
	}
	if scripted {
		if err := b.evaluate(st); err != nil {
			return nil, err
		}
		// Updated execution units change the fee, so balance again
		if err := b.balance(st); err != nil {
			return nil, err
		}
	}
	return b.assemble(st)
}

// BuildAndSubmit builds the transaction and submits it via the provider.
// The transaction carries no vkey witnesses; this is only useful for
// transactions that need none
func (b *TxBuilder) BuildAndSubmit() (string, error) {
	if b.provider == nil {
		return "", MissingConfigurationError{Field: "provider"}
	}
	tx, err := b.Build()
	if err != nil {
		return "", err
	}
	return b.provider.SubmitTransaction(tx.Cbor())
}
