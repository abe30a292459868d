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
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"
	"github.com/blinklabs-io/plutigo/data"
)

// Plutus language ids as used in cost model and language view keys
const (
	plutusV1Language = 0
	plutusV2Language = 1
	plutusV3Language = 2
)

// assemble produces the final transaction from a balanced build state
func (b *TxBuilder) assemble(st *buildState) (*Transaction, error) {
	return b.buildTransaction(st, st.fee, false)
}

// buildTransaction serializes the build state into a transaction paying the
// given fee. Draft transactions carry placeholder vkey witnesses so their
// size matches the signed transaction. Set-typed body fields are populated
// in canonical order, so assembling the same state twice yields identical
// bytes
func (b *TxBuilder) buildTransaction(
	st *buildState,
	fee uint64,
	draft bool,
) (*Transaction, error) {
	// Spent inputs in canonical order; redeemer indexes refer to positions
	// in this ordering
	spent := make([]common.Utxo, 0, len(st.inputs)+len(st.selectedInputs))
	for _, input := range st.inputs {
		spent = append(spent, input.utxo)
	}
	spent = append(spent, st.selectedInputs...)
	sortUtxos(spent)
	inputIndexes := make(map[string]uint32, len(spent))
	for idx, utxo := range spent {
		// #nosec G115
		inputIndexes[utxo.Id.String()] = uint32(idx)
	}

	outputs := make([]Output, 0, len(st.outputs)+1)
	outputs = append(outputs, st.outputs...)
	if st.changeOutput != nil {
		outputs = append(outputs, *st.changeOutput)
	}

	body := TransactionBody{
		TxInputs:   cbor.NewSetType(utxoInputs(spent), true),
		TxOutputs:  outputs,
		TxFee:      fee,
		TxMint:     st.mintMultiAsset(),
		NetworkId:  b.networkId,
		TxDonation: b.donation,
	}
	if b.validToSlot != nil {
		body.Ttl = *b.validToSlot
	}
	if b.validFromSlot != nil {
		body.TxValidityIntervalStart = *b.validFromSlot
	}
	if b.treasuryValue != nil {
		body.TxCurrentTreasuryValue = *b.treasuryValue
	}
	if len(st.certs) > 0 {
		wrappers := make([]common.CertificateWrapper, 0, len(st.certs))
		for _, cert := range st.certs {
			wrappers = append(wrappers, cert.cert)
		}
		body.TxCertificates = cbor.NewSetType(wrappers, true)
	}
	if len(st.withdrawals) > 0 {
		body.TxWithdrawals = make(
			map[*common.Address]uint64,
			len(st.withdrawals),
		)
		for i := range st.withdrawals {
			body.TxWithdrawals[&st.withdrawals[i].address] = st.withdrawals[i].amount
		}
	}
	if len(st.collateral) > 0 {
		collateral := make([]common.Utxo, len(st.collateral))
		copy(collateral, st.collateral)
		sortUtxos(collateral)
		body.TxCollateral = cbor.NewSetType(utxoInputs(collateral), true)
		body.TxTotalCollateral = st.totalCollateral
		body.TxCollateralReturn = st.collateralReturn
	}
	if len(st.referenceInputs) > 0 {
		refInputs := make([]common.Utxo, len(st.referenceInputs))
		copy(refInputs, st.referenceInputs)
		sortUtxos(refInputs)
		body.TxReferenceInputs = cbor.NewSetType(utxoInputs(refInputs), true)
	}
	signerHashes := dedupeKeyHashes(st.requiredSigners)
	if len(signerHashes) > 0 {
		body.TxRequiredSigners = cbor.NewSetType(signerHashes, true)
	}
	if len(st.proposals) > 0 {
		body.TxProposalProcedures = st.proposals
	}

	// Unique voters in canonical order; the voting procedures map and the
	// voting redeemer indexes both derive from it
	voterIndexes := map[common.Voter]uint32{}
	if len(st.votes) > 0 {
		procedures := common.VotingProcedures{}
		voterPtrs := map[common.Voter]*common.Voter{}
		for _, vote := range st.votes {
			ptr, ok := voterPtrs[vote.voter]
			if !ok {
				tmpVoter := vote.voter
				ptr = &tmpVoter
				voterPtrs[vote.voter] = ptr
				procedures[ptr] = map[*common.GovActionId]common.VotingProcedure{}
			}
			tmpActionId := vote.actionId
			procedures[ptr][&tmpActionId] = vote.procedure
		}
		body.TxVotingProcedures = procedures
		sortedVoters, err := sortVoters(voterPtrs)
		if err != nil {
			return nil, err
		}
		for idx, voter := range sortedVoters {
			// #nosec G115
			voterIndexes[voter] = uint32(idx)
		}
	}

	// Witness set
	var witnessSet TransactionWitnessSet
	var nativeScripts []common.NativeScript
	var v1Scripts, v2Scripts, v3Scripts [][]byte
	for _, script := range st.scripts {
		switch s := script.(type) {
		case common.NativeScript:
			nativeScripts = append(nativeScripts, s)
		case *common.NativeScript:
			nativeScripts = append(nativeScripts, *s)
		case common.PlutusV1Script:
			v1Scripts = append(v1Scripts, []byte(s))
		case common.PlutusV2Script:
			v2Scripts = append(v2Scripts, []byte(s))
		case common.PlutusV3Script:
			v3Scripts = append(v3Scripts, []byte(s))
		default:
			return nil, fmt.Errorf("unsupported script type %T", script)
		}
	}
	if len(nativeScripts) > 0 {
		witnessSet.NativeScripts = cbor.NewSetType(nativeScripts, true)
	}
	if len(v1Scripts) > 0 {
		witnessSet.PlutusV1Scripts = cbor.NewSetType(v1Scripts, true)
	}
	if len(v2Scripts) > 0 {
		witnessSet.PlutusV2Scripts = cbor.NewSetType(v2Scripts, true)
	}
	if len(v3Scripts) > 0 {
		witnessSet.PlutusV3Scripts = cbor.NewSetType(v3Scripts, true)
	}

	// Datums from spent inputs first, then explicitly attached ones,
	// deduplicated by their encoding
	var datumList []common.Datum
	seenDatums := map[string]bool{}
	addDatum := func(pd data.PlutusData) error {
		enc, err := data.Encode(pd)
		if err != nil {
			return EncodingError{What: "datum", Err: err}
		}
		if seenDatums[string(enc)] {
			return nil
		}
		seenDatums[string(enc)] = true
		datumList = append(datumList, common.Datum{Data: pd})
		return nil
	}
	for _, input := range st.inputs {
		if input.datum == nil {
			continue
		}
		if err := addDatum(input.datum); err != nil {
			return nil, err
		}
	}
	for _, datum := range st.datums {
		if err := addDatum(datum); err != nil {
			return nil, err
		}
	}
	if len(datumList) > 0 {
		witnessSet.PlutusData = cbor.NewSetType(datumList, true)
	}

	redeemers := map[RedeemerKey]RedeemerValue{}
	addRedeemer := func(
		tag common.RedeemerTag,
		index uint32,
		rd data.PlutusData,
	) error {
		enc, err := data.Encode(rd)
		if err != nil {
			return EncodingError{What: "redeemer", Err: err}
		}
		key := RedeemerKey{Tag: tag, Index: index}
		redeemers[key] = RedeemerValue{
			Data:    enc,
			ExUnits: st.exUnits[key],
		}
		return nil
	}
	for _, input := range st.inputs {
		if input.redeemer == nil {
			continue
		}
		idx := inputIndexes[input.utxo.Id.String()]
		if err := addRedeemer(common.RedeemerTagSpend, idx, input.redeemer); err != nil {
			return nil, err
		}
	}
	for idx, policyId := range sortedMintPolicies(st.mintAmounts) {
		redeemer := st.mintRedeemers[policyId]
		if redeemer == nil {
			continue
		}
		// #nosec G115
		if err := addRedeemer(common.RedeemerTagMint, uint32(idx), redeemer); err != nil {
			return nil, err
		}
	}
	for idx, cert := range st.certs {
		if cert.redeemer == nil {
			continue
		}
		// #nosec G115
		if err := addRedeemer(common.RedeemerTagCert, uint32(idx), cert.redeemer); err != nil {
			return nil, err
		}
	}
	withdrawalIdxs, err := sortWithdrawals(st.withdrawals)
	if err != nil {
		return nil, err
	}
	for sortedIdx, origIdx := range withdrawalIdxs {
		redeemer := st.withdrawals[origIdx].redeemer
		if redeemer == nil {
			continue
		}
		// #nosec G115
		if err := addRedeemer(common.RedeemerTagReward, uint32(sortedIdx), redeemer); err != nil {
			return nil, err
		}
	}
	for _, vote := range st.votes {
		if vote.redeemer == nil {
			continue
		}
		idx := voterIndexes[vote.voter]
		if err := addRedeemer(common.RedeemerTagVoting, idx, vote.redeemer); err != nil {
			return nil, err
		}
	}
	if len(redeemers) > 0 {
		witnessSet.Redeemers = redeemers
	}

	if len(redeemers) > 0 || len(datumList) > 0 {
		scriptDataHash, err := b.scriptDataHash(
			redeemers,
			datumList,
			len(v1Scripts) > 0,
			len(v2Scripts) > 0,
			len(v3Scripts) > 0,
		)
		if err != nil {
			return nil, err
		}
		body.TxScriptDataHash = &scriptDataHash
	}

	var txMetadata cbor.RawMessage
	if len(st.metadata) > 0 {
		metadataCbor, err := cbor.Encode(st.metadata)
		if err != nil {
			return nil, EncodingError{What: "metadata", Err: err}
		}
		auxDataHash := common.Blake2b256Hash(metadataCbor)
		body.TxAuxDataHash = &auxDataHash
		txMetadata = metadataCbor
	}

	if draft {
		count := b.dummySignerCount(st, spent, signerHashes)
		if count > 0 {
			dummies := make([]common.VkeyWitness, 0, count)
			for i := 0; i < count; i++ {
				vkey := make([]byte, 32)
				// Distinguish placeholder keys so the set does not collapse
				vkey[0] = byte(i >> 8)
				vkey[1] = byte(i)
				dummies = append(dummies, common.VkeyWitness{
					Vkey:      vkey,
					Signature: make([]byte, 64),
				})
			}
			witnessSet.VkeyWitnesses = cbor.NewSetType(dummies, true)
		}
	}

	return &Transaction{
		Body:       body,
		WitnessSet: witnessSet,
		IsTxValid:  true,
		TxMetadata: txMetadata,
	}, nil
}

// dummySignerCount estimates how many vkey witnesses the signed transaction
// will carry: one per distinct payment key across spent and collateral
// inputs, one per required signer not already counted, plus any explicit
// padding
func (b *TxBuilder) dummySignerCount(
	st *buildState,
	spent []common.Utxo,
	signerHashes []common.Blake2b224,
) int {
	keys := map[common.Blake2b224]bool{}
	addPaymentKey := func(utxo common.Utxo) {
		addr := utxo.Output.Address()
		if _, ok := addr.PayloadPayload().(common.AddressPayloadKeyHash); ok {
			keys[addr.PaymentKeyHash()] = true
		}
	}
	for _, utxo := range spent {
		addPaymentKey(utxo)
	}
	for _, utxo := range st.collateral {
		addPaymentKey(utxo)
	}
	for _, keyHash := range signerHashes {
		keys[keyHash] = true
	}
	return len(keys) + st.padSigners
}

// scriptDataHash computes the hash binding the redeemers, datums, and cost
// models of the languages in use. The PlutusV1 language view keeps its
// historical double-encoded form
func (b *TxBuilder) scriptDataHash(
	redeemers map[RedeemerKey]RedeemerValue,
	datums []common.Datum,
	useV1 bool,
	useV2 bool,
	useV3 bool,
) (common.Blake2b256, error) {
	var hashInput []byte
	redeemersCbor, err := cbor.Encode(redeemers)
	if err != nil {
		return common.Blake2b256{}, EncodingError{What: "redeemers", Err: err}
	}
	hashInput = append(hashInput, redeemersCbor...)
	if len(datums) > 0 {
		datumSet := cbor.NewSetType(datums, true)
		datumsCbor, err := cbor.Encode(&datumSet)
		if err != nil {
			return common.Blake2b256{}, EncodingError{What: "datums", Err: err}
		}
		hashInput = append(hashInput, datumsCbor...)
	}
	if !useV1 && !useV2 && !useV3 && len(redeemers) > 0 {
		// Scripts referenced rather than attached; assume the current
		// Plutus version for the language view
		useV3 = true
	}
	langViews, err := b.languageViews(useV1, useV2, useV3)
	if err != nil {
		return common.Blake2b256{}, err
	}
	hashInput = append(hashInput, langViews...)
	return common.Blake2b256Hash(hashInput), nil
}

// languageViews encodes the cost model map for the languages in use. Keys
// are sorted bytewise to match deterministic map encoding
func (b *TxBuilder) languageViews(
	useV1 bool,
	useV2 bool,
	useV3 bool,
) ([]byte, error) {
	type viewEntry struct {
		key   []byte
		value []byte
	}
	var entries []viewEntry
	if useV1 {
		if costModel, ok := b.pparams.CostModels[plutusV1Language]; ok {
			// Double-encoded: the key is the serialized language id wrapped
			// in a byte string, the value is the serialized cost model
			// (as an indefinite-length array) wrapped in a byte string
			keyInner, err := cbor.Encode(uint64(plutusV1Language))
			if err != nil {
				return nil, EncodingError{What: "language view", Err: err}
			}
			key, err := cbor.Encode(keyInner)
			if err != nil {
				return nil, EncodingError{What: "language view", Err: err}
			}
			items := make(cbor.IndefLengthList, 0, len(costModel))
			for _, v := range costModel {
				items = append(items, v)
			}
			valueInner, err := cbor.Encode(items)
			if err != nil {
				return nil, EncodingError{What: "language view", Err: err}
			}
			value, err := cbor.Encode(valueInner)
			if err != nil {
				return nil, EncodingError{What: "language view", Err: err}
			}
			entries = append(entries, viewEntry{key: key, value: value})
		}
	}
	plainView := func(language uint64) error {
		costModel, ok := b.pparams.CostModels[uint(language)]
		if !ok {
			return nil
		}
		key, err := cbor.Encode(language)
		if err != nil {
			return EncodingError{What: "language view", Err: err}
		}
		value, err := cbor.Encode(costModel)
		if err != nil {
			return EncodingError{What: "language view", Err: err}
		}
		entries = append(entries, viewEntry{key: key, value: value})
		return nil
	}
	if useV2 {
		if err := plainView(plutusV2Language); err != nil {
			return nil, err
		}
	}
	if useV3 {
		if err := plainView(plutusV3Language); err != nil {
			return nil, err
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})
	ret := []byte{0xa0 + byte(len(entries))}
	for _, entry := range entries {
		ret = append(ret, entry.key...)
		ret = append(ret, entry.value...)
	}
	return ret, nil
}

// sortUtxos orders UTxOs bytewise by transaction id, then by output index
func sortUtxos(utxos []common.Utxo) {
	sort.Slice(utxos, func(i, j int) bool {
		idA := utxos[i].Id.Id()
		idB := utxos[j].Id.Id()
		if cmp := bytes.Compare(idA.Bytes(), idB.Bytes()); cmp != 0 {
			return cmp < 0
		}
		return utxos[i].Id.Index() < utxos[j].Id.Index()
	})
}

func utxoInputs(utxos []common.Utxo) []shelley.ShelleyTransactionInput {
	ret := make([]shelley.ShelleyTransactionInput, 0, len(utxos))
	for _, utxo := range utxos {
		ret = append(
			ret,
			shelley.NewShelleyTransactionInput(
				utxo.Id.Id().String(),
				int(utxo.Id.Index()),
			),
		)
	}
	return ret
}

// dedupeKeyHashes returns the unique key hashes in bytewise order
func dedupeKeyHashes(hashes []common.Blake2b224) []common.Blake2b224 {
	seen := map[common.Blake2b224]bool{}
	ret := make([]common.Blake2b224, 0, len(hashes))
	for _, hash := range hashes {
		if seen[hash] {
			continue
		}
		seen[hash] = true
		ret = append(ret, hash)
	}
	sort.Slice(ret, func(i, j int) bool {
		return bytes.Compare(ret[i].Bytes(), ret[j].Bytes()) < 0
	})
	return ret
}

// sortedMintPolicies returns the policies with a nonzero mint or burn in
// bytewise order, matching the positions of the encoded mint field
func sortedMintPolicies(
	mintAmounts map[common.Blake2b224]map[string]*big.Int,
) []common.Blake2b224 {
	ret := make([]common.Blake2b224, 0, len(mintAmounts))
	for policyId, assets := range mintAmounts {
		var nonZero bool
		for _, amount := range assets {
			if amount.Sign() != 0 {
				nonZero = true
				break
			}
		}
		if nonZero {
			ret = append(ret, policyId)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return bytes.Compare(ret[i].Bytes(), ret[j].Bytes()) < 0
	})
	return ret
}

// sortWithdrawals returns the original withdrawal indexes ordered by the
// encoded reward address, matching deterministic map key order
func sortWithdrawals(withdrawals []resolvedWithdrawal) ([]int, error) {
	type withdrawalKey struct {
		pos int
		key []byte
	}
	keys := make([]withdrawalKey, 0, len(withdrawals))
	for i := range withdrawals {
		enc, err := cbor.Encode(&withdrawals[i].address)
		if err != nil {
			return nil, EncodingError{What: "reward address", Err: err}
		}
		keys = append(keys, withdrawalKey{pos: i, key: enc})
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].key, keys[j].key) < 0
	})
	ret := make([]int, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, k.pos)
	}
	return ret, nil
}

// sortVoters returns the unique voters ordered by their encoding, matching
// deterministic map key order in the voting procedures field
func sortVoters(voters map[common.Voter]*common.Voter) ([]common.Voter, error) {
	type voterKey struct {
		voter common.Voter
		key   []byte
	}
	keys := make([]voterKey, 0, len(voters))
	for voter := range voters {
		tmpVoter := voter
		enc, err := cbor.Encode(&tmpVoter)
		if err != nil {
			return nil, EncodingError{What: "voter", Err: err}
		}
		keys = append(keys, voterKey{voter: voter, key: enc})
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].key, keys[j].key) < 0
	})
	ret := make([]common.Voter, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, k.voter)
	}
	return ret, nil
}
