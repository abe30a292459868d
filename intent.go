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
	"github.com/blinklabs-io/plutigo/data"

	"github.com/blinklabs-io/txbuilder/value"
)

// Intents record caller requests exactly as supplied. They are
// insertion-ordered, immutable once recorded, and owned exclusively by the
// builder. Loosely-typed fields (address strings, hex hashes) are converted
// to canonical values by the resolver at build time, never here.

type intent interface {
	op() string
}

type sendValueIntent struct {
	address string
	value   value.Value
}

func (sendValueIntent) op() string { return "send" }

type lockValueIntent struct {
	scriptAddress string
	value         value.Value
	datum         data.PlutusData
}

func (lockValueIntent) op() string { return "lock" }

type addInputIntent struct {
	utxo     common.Utxo
	redeemer data.PlutusData
	datum    data.PlutusData
}

func (addInputIntent) op() string { return "add_input" }

type addOutputIntent struct {
	output Output
}

func (addOutputIntent) op() string { return "add_output" }

type addReferenceInputIntent struct {
	utxo common.Utxo
}

func (addReferenceInputIntent) op() string { return "add_reference_input" }

type mintBurnIntent struct {
	policyId  string
	assetName []byte
	amount    int64
	redeemer  data.PlutusData
}

func (mintBurnIntent) op() string { return "mint" }

type certificateIntent struct {
	cert     common.Certificate
	redeemer data.PlutusData
}

func (certificateIntent) op() string { return "add_certificate" }

type withdrawalIntent struct {
	rewardAddress string
	amount        *uint64
	redeemer      data.PlutusData
}

func (withdrawalIntent) op() string { return "withdraw" }

type registerRewardAddressIntent struct {
	rewardAddress string
}

func (registerRewardAddressIntent) op() string {
	return "register_reward_address"
}

type deregisterRewardAddressIntent struct {
	rewardAddress string
	redeemer      data.PlutusData
}

func (deregisterRewardAddressIntent) op() string {
	return "deregister_reward_address"
}

type delegateStakeIntent struct {
	rewardAddress string
	poolId        string
	redeemer      data.PlutusData
}

func (delegateStakeIntent) op() string { return "delegate_stake" }

type delegateVoteIntent struct {
	rewardAddress string
	drep          common.Drep
	redeemer      data.PlutusData
}

func (delegateVoteIntent) op() string { return "delegate_vote" }

type registerDRepIntent struct {
	credential string
	anchor     *common.GovAnchor
}

func (registerDRepIntent) op() string { return "register_drep" }

type updateDRepIntent struct {
	credential string
	anchor     *common.GovAnchor
}

func (updateDRepIntent) op() string { return "update_drep" }

type deregisterDRepIntent struct {
	credential string
}

func (deregisterDRepIntent) op() string { return "deregister_drep" }

type voteIntent struct {
	voter     common.Voter
	actionId  common.GovActionId
	procedure common.VotingProcedure
	redeemer  data.PlutusData
}

func (voteIntent) op() string { return "vote" }

type proposalIntent struct {
	procedure common.ProposalProcedure
}

func (proposalIntent) op() string { return "propose" }

type attachScriptIntent struct {
	script common.Script
}

func (attachScriptIntent) op() string { return "attach_script" }

type attachDatumIntent struct {
	datum data.PlutusData
}

func (attachDatumIntent) op() string { return "attach_datum" }

type setMetadataIntent struct {
	tag   uint64
	value any
}

func (setMetadataIntent) op() string { return "set_metadata" }

type padSignersIntent struct {
	count int
}

func (padSignersIntent) op() string { return "pad_signers" }

type addSignerIntent struct {
	keyHash string
}

func (addSignerIntent) op() string { return "add_signer" }
