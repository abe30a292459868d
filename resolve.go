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
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/plutigo/data"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

type resolvedInput struct {
	utxo     common.Utxo
	redeemer data.PlutusData
	datum    data.PlutusData
}

type resolvedCert struct {
	cert     common.CertificateWrapper
	redeemer data.PlutusData
	// deposit is the value locked by this certificate; negative values are
	// refunds credited back to the transaction
	deposit int64
}

type resolvedWithdrawal struct {
	address  common.Address
	amount   uint64
	redeemer data.PlutusData
}

type resolvedVote struct {
	voter     common.Voter
	actionId  common.GovActionId
	procedure common.VotingProcedure
	redeemer  data.PlutusData
}

// buildState holds the normalized form of all intents plus the results of
// balancing. Balancing results are recomputed on every balance pass
type buildState struct {
	inputs          []resolvedInput
	referenceInputs []common.Utxo
	outputs         []Output
	mintAmounts     map[common.Blake2b224]map[string]*big.Int
	mintRedeemers   map[common.Blake2b224]data.PlutusData
	certs           []resolvedCert
	withdrawals     []resolvedWithdrawal
	votes           []resolvedVote
	proposals       []common.ProposalProcedure
	scripts         []common.Script
	datums          []data.PlutusData
	metadata        map[uint64]any
	requiredSigners []common.Blake2b224
	padSigners      int

	// balancing results
	selectedInputs   []common.Utxo
	changeOutput     *Output
	fee              uint64
	collateral       []common.Utxo
	collateralReturn *Output
	totalCollateral  uint64
	exUnits          map[RedeemerKey]common.ExUnits
}

// hasPlutusScripts reports whether any part of the transaction carries a
// redeemer, which means collateral and script evaluation are required
func (st *buildState) hasPlutusScripts() bool {
	for _, input := range st.inputs {
		if input.redeemer != nil {
			return true
		}
	}
	for _, redeemer := range st.mintRedeemers {
		if redeemer != nil {
			return true
		}
	}
	for _, cert := range st.certs {
		if cert.redeemer != nil {
			return true
		}
	}
	for _, withdrawal := range st.withdrawals {
		if withdrawal.redeemer != nil {
			return true
		}
	}
	for _, vote := range st.votes {
		if vote.redeemer != nil {
			return true
		}
	}
	return false
}

// mintMultiAsset converts the merged mint amounts to the ledger multi-asset
// type. Returns nil when nothing is minted or burned
func (st *buildState) mintMultiAsset() *common.MultiAsset[common.MultiAssetTypeMint] {
	assetsMap := map[common.Blake2b224]map[cbor.ByteString]*big.Int{}
	for policyId, assets := range st.mintAmounts {
		for assetName, amount := range assets {
			if amount.Sign() == 0 {
				continue
			}
			if assetsMap[policyId] == nil {
				assetsMap[policyId] = map[cbor.ByteString]*big.Int{}
			}
			assetsMap[policyId][cbor.NewByteString([]byte(assetName))] = new(big.Int).Set(amount)
		}
	}
	if len(assetsMap) == 0 {
		return nil
	}
	ret := common.NewMultiAsset[common.MultiAssetTypeMint](assetsMap)
	return &ret
}

// resolve converts the recorded intents into a buildState. Failures from
// individual intents are collected and reported together
func (b *TxBuilder) resolve() (*buildState, error) {
	st := &buildState{
		mintAmounts:   map[common.Blake2b224]map[string]*big.Int{},
		mintRedeemers: map[common.Blake2b224]data.PlutusData{},
		metadata:      map[uint64]any{},
	}
	var intentErrs []error
	seenInputs := map[string]bool{}
	failf := func(idx int, op string, format string, args ...any) {
		intentErrs = append(
			intentErrs,
			IntentError{
				Index: idx,
				Op:    op,
				Err:   fmt.Errorf(format, args...),
			},
		)
	}
	fail := func(idx int, op string, err error) {
		intentErrs = append(
			intentErrs,
			IntentError{Index: idx, Op: op, Err: err},
		)
	}
	for idx, item := range b.intents {
		switch i := item.(type) {
		case sendValueIntent:
			addr, err := common.NewAddress(i.address)
			if err != nil {
				failf(idx, i.op(), "invalid address %q: %w", i.address, err)
				continue
			}
			st.outputs = append(
				st.outputs,
				NewOutput(addr, i.value.Coin, i.value.Assets),
			)
		case lockValueIntent:
			addr, err := common.NewAddress(i.scriptAddress)
			if err != nil {
				failf(idx, i.op(), "invalid address %q: %w", i.scriptAddress, err)
				continue
			}
			if i.datum == nil {
				failf(idx, i.op(), "missing datum")
				continue
			}
			output := NewOutput(addr, i.value.Coin, i.value.Assets)
			output.DatumOption = NewDatumOptionInline(i.datum)
			st.outputs = append(st.outputs, output)
		case addInputIntent:
			inputId := i.utxo.Id.String()
			if seenInputs[inputId] {
				failf(idx, i.op(), "duplicate input %s", inputId)
				continue
			}
			seenInputs[inputId] = true
			st.inputs = append(
				st.inputs,
				resolvedInput{
					utxo:     i.utxo,
					redeemer: i.redeemer,
					datum:    i.datum,
				},
			)
		case addOutputIntent:
			st.outputs = append(st.outputs, i.output)
		case addReferenceInputIntent:
			st.referenceInputs = append(st.referenceInputs, i.utxo)
		case mintBurnIntent:
			if i.amount == 0 {
				failf(idx, i.op(), "zero mint amount")
				continue
			}
			policyId, err := parsePolicyId(i.policyId)
			if err != nil {
				failf(idx, i.op(), "invalid policy id %q: %w", i.policyId, err)
				continue
			}
			if st.mintAmounts[policyId] == nil {
				st.mintAmounts[policyId] = map[string]*big.Int{}
			}
			assetKey := string(i.assetName)
			if st.mintAmounts[policyId][assetKey] == nil {
				st.mintAmounts[policyId][assetKey] = new(big.Int)
			}
			st.mintAmounts[policyId][assetKey].Add(
				st.mintAmounts[policyId][assetKey],
				big.NewInt(i.amount),
			)
			if i.redeemer != nil {
				st.mintRedeemers[policyId] = i.redeemer
			} else if _, ok := st.mintRedeemers[policyId]; !ok {
				st.mintRedeemers[policyId] = nil
			}
		case certificateIntent:
			if i.cert == nil {
				failf(idx, i.op(), "nil certificate")
				continue
			}
			st.certs = append(
				st.certs,
				resolvedCert{
					cert: common.CertificateWrapper{
						Type:        i.cert.Type(),
						Certificate: i.cert,
					},
					redeemer: i.redeemer,
					deposit:  b.certificateDeposit(i.cert),
				},
			)
		case withdrawalIntent:
			addr, err := common.NewAddress(i.rewardAddress)
			if err != nil {
				failf(idx, i.op(), "invalid reward address %q: %w", i.rewardAddress, err)
				continue
			}
			var amount uint64
			if i.amount != nil {
				amount = *i.amount
			} else {
				if b.provider == nil {
					fail(idx, i.op(), MissingConfigurationError{Field: "provider"})
					continue
				}
				amount, err = b.provider.RewardsBalance(addr)
				if err != nil {
					failf(idx, i.op(), "rewards balance lookup: %w", err)
					continue
				}
			}
			st.withdrawals = append(
				st.withdrawals,
				resolvedWithdrawal{
					address:  addr,
					amount:   amount,
					redeemer: i.redeemer,
				},
			)
		case registerRewardAddressIntent:
			cred, err := stakeCredentialFromAddress(i.rewardAddress)
			if err != nil {
				fail(idx, i.op(), err)
				continue
			}
			// #nosec G115
			deposit := int64(b.pparams.KeyDeposit)
			st.certs = append(
				st.certs,
				resolvedCert{
					cert: common.CertificateWrapper{
						Type: common.CertificateTypeRegistration,
						Certificate: &common.RegistrationCertificate{
							CertType:        common.CertificateTypeRegistration,
							StakeCredential: cred,
							Amount:          deposit,
						},
					},
					deposit: deposit,
				},
			)
		case deregisterRewardAddressIntent:
			cred, err := stakeCredentialFromAddress(i.rewardAddress)
			if err != nil {
				fail(idx, i.op(), err)
				continue
			}
			// #nosec G115
			deposit := int64(b.pparams.KeyDeposit)
			st.certs = append(
				st.certs,
				resolvedCert{
					cert: common.CertificateWrapper{
						Type: common.CertificateTypeDeregistration,
						Certificate: &common.DeregistrationCertificate{
							CertType:        common.CertificateTypeDeregistration,
							StakeCredential: cred,
							Amount:          deposit,
						},
					},
					redeemer: i.redeemer,
					deposit:  -deposit,
				},
			)
		case delegateStakeIntent:
			cred, err := stakeCredentialFromAddress(i.rewardAddress)
			if err != nil {
				fail(idx, i.op(), err)
				continue
			}
			poolId, err := common.NewPoolIdFromBech32(i.poolId)
			if err != nil {
				failf(idx, i.op(), "invalid pool id %q: %w", i.poolId, err)
				continue
			}
			st.certs = append(
				st.certs,
				resolvedCert{
					cert: common.CertificateWrapper{
						Type: common.CertificateTypeStakeDelegation,
						Certificate: &common.StakeDelegationCertificate{
							CertType:        common.CertificateTypeStakeDelegation,
							StakeCredential: &cred,
							PoolKeyHash:     common.PoolKeyHash(poolId),
						},
					},
					redeemer: i.redeemer,
				},
			)
		case delegateVoteIntent:
			cred, err := stakeCredentialFromAddress(i.rewardAddress)
			if err != nil {
				fail(idx, i.op(), err)
				continue
			}
			st.certs = append(
				st.certs,
				resolvedCert{
					cert: common.CertificateWrapper{
						Type: common.CertificateTypeVoteDelegation,
						Certificate: &common.VoteDelegationCertificate{
							CertType:        common.CertificateTypeVoteDelegation,
							StakeCredential: cred,
							Drep:            i.drep,
						},
					},
					redeemer: i.redeemer,
				},
			)
		case registerDRepIntent:
			cred, err := keyHashCredential(i.credential)
			if err != nil {
				fail(idx, i.op(), err)
				continue
			}
			// #nosec G115
			deposit := int64(b.pparams.DRepDeposit)
			st.certs = append(
				st.certs,
				resolvedCert{
					cert: common.CertificateWrapper{
						Type: common.CertificateTypeRegistrationDrep,
						Certificate: &common.RegistrationDrepCertificate{
							CertType:       common.CertificateTypeRegistrationDrep,
							DrepCredential: cred,
							Amount:         deposit,
							Anchor:         i.anchor,
						},
					},
					deposit: deposit,
				},
			)
		case updateDRepIntent:
			cred, err := keyHashCredential(i.credential)
			if err != nil {
				fail(idx, i.op(), err)
				continue
			}
			st.certs = append(
				st.certs,
				resolvedCert{
					cert: common.CertificateWrapper{
						Type: common.CertificateTypeUpdateDrep,
						Certificate: &common.UpdateDrepCertificate{
							CertType:       common.CertificateTypeUpdateDrep,
							DrepCredential: cred,
							Anchor:         i.anchor,
						},
					},
				},
			)
		case deregisterDRepIntent:
			cred, err := keyHashCredential(i.credential)
			if err != nil {
				fail(idx, i.op(), err)
				continue
			}
			// #nosec G115
			deposit := int64(b.pparams.DRepDeposit)
			st.certs = append(
				st.certs,
				resolvedCert{
					cert: common.CertificateWrapper{
						Type: common.CertificateTypeDeregistrationDrep,
						Certificate: &common.DeregistrationDrepCertificate{
							CertType:       common.CertificateTypeDeregistrationDrep,
							DrepCredential: cred,
							Amount:         deposit,
						},
					},
					deposit: -deposit,
				},
			)
		case voteIntent:
			st.votes = append(
				st.votes,
				resolvedVote{
					voter:     i.voter,
					actionId:  i.actionId,
					procedure: i.procedure,
					redeemer:  i.redeemer,
				},
			)
		case proposalIntent:
			procedure := i.procedure
			if procedure.Deposit == 0 {
				procedure.Deposit = b.pparams.GovActionDeposit
			}
			st.proposals = append(st.proposals, procedure)
		case attachScriptIntent:
			if i.script == nil {
				failf(idx, i.op(), "nil script")
				continue
			}
			st.scripts = append(st.scripts, i.script)
		case attachDatumIntent:
			if i.datum == nil {
				failf(idx, i.op(), "nil datum")
				continue
			}
			st.datums = append(st.datums, i.datum)
		case setMetadataIntent:
			st.metadata[i.tag] = i.value
		case padSignersIntent:
			if i.count < 0 {
				failf(idx, i.op(), "negative signer count %d", i.count)
				continue
			}
			st.padSigners += i.count
		case addSignerIntent:
			keyHash, err := parseKeyHash(i.keyHash)
			if err != nil {
				fail(idx, i.op(), err)
				continue
			}
			st.requiredSigners = append(st.requiredSigners, keyHash)
		default:
			failf(idx, item.op(), "unhandled intent type %T", item)
		}
	}
	if len(intentErrs) > 0 {
		return nil, errors.Join(intentErrs...)
	}
	return st, nil
}

// certificateDeposit infers the value locked or refunded by a verbatim
// certificate
func (b *TxBuilder) certificateDeposit(cert common.Certificate) int64 {
	switch c := cert.(type) {
	case *common.StakeRegistrationCertificate:
		// #nosec G115
		return int64(b.pparams.KeyDeposit)
	case *common.StakeDeregistrationCertificate:
		// #nosec G115
		return -int64(b.pparams.KeyDeposit)
	case *common.RegistrationCertificate:
		return c.Amount
	case *common.DeregistrationCertificate:
		return -c.Amount
	case *common.RegistrationDrepCertificate:
		return c.Amount
	case *common.DeregistrationDrepCertificate:
		return -c.Amount
	case *common.PoolRegistrationCertificate:
		// #nosec G115
		return int64(b.pparams.PoolDeposit)
	default:
		return 0
	}
}

// stakeCredentialFromAddress extracts the staking credential from a bech32
// reward address
func stakeCredentialFromAddress(rewardAddress string) (common.Credential, error) {
	var cred common.Credential
	addr, err := common.NewAddress(rewardAddress)
	if err != nil {
		return cred, fmt.Errorf(
			"invalid reward address %q: %w",
			rewardAddress,
			err,
		)
	}
	stakingPayload := addr.StakingPayload()
	if stakingPayload == nil {
		return cred, fmt.Errorf(
			"address %q has no staking credential",
			rewardAddress,
		)
	}
	switch p := stakingPayload.(type) {
	case common.AddressPayloadKeyHash:
		cred = common.Credential{
			CredType:   common.CredentialTypeAddrKeyHash,
			Credential: common.Blake2b224(p.Hash),
		}
	case common.AddressPayloadScriptHash:
		cred = common.Credential{
			CredType:   common.CredentialTypeScriptHash,
			Credential: common.Blake2b224(p.Hash),
		}
	default:
		return cred, fmt.Errorf(
			"unsupported staking payload type %T",
			stakingPayload,
		)
	}
	return cred, nil
}

// keyHashCredential builds a credential from a hex hash or a bech32 id
// (drep1..., drep_script1...)
func keyHashCredential(credential string) (common.Credential, error) {
	var cred common.Credential
	if keyHash, err := parseKeyHash(credential); err == nil {
		cred = common.Credential{
			CredType:   common.CredentialTypeAddrKeyHash,
			Credential: keyHash,
		}
		return cred, nil
	}
	hrp, rawData, err := bech32.DecodeNoLimit(credential)
	if err != nil {
		return cred, fmt.Errorf("invalid credential %q: %w", credential, err)
	}
	decoded, err := bech32.ConvertBits(rawData, 5, 8, false)
	if err != nil {
		return cred, fmt.Errorf("invalid credential %q: %w", credential, err)
	}
	if len(decoded) != common.Blake2b224Size {
		return cred, fmt.Errorf(
			"invalid credential length %d, expected %d",
			len(decoded),
			common.Blake2b224Size,
		)
	}
	credType := uint(common.CredentialTypeAddrKeyHash)
	if strings.HasSuffix(hrp, "_script") {
		credType = common.CredentialTypeScriptHash
	}
	cred = common.Credential{
		CredType:   credType,
		Credential: common.NewBlake2b224(decoded),
	}
	return cred, nil
}

func parseKeyHash(keyHashHex string) (common.Blake2b224, error) {
	keyHash, err := hex.DecodeString(keyHashHex)
	if err != nil {
		return common.Blake2b224{}, fmt.Errorf(
			"invalid key hash %q: %w",
			keyHashHex,
			err,
		)
	}
	if len(keyHash) != common.Blake2b224Size {
		return common.Blake2b224{}, fmt.Errorf(
			"invalid key hash length %d, expected %d",
			len(keyHash),
			common.Blake2b224Size,
		)
	}
	return common.NewBlake2b224(keyHash), nil
}

func parsePolicyId(policyIdHex string) (common.Blake2b224, error) {
	policyId, err := hex.DecodeString(policyIdHex)
	if err != nil {
		return common.Blake2b224{}, err
	}
	if len(policyId) != common.Blake2b224Size {
		return common.Blake2b224{}, fmt.Errorf(
			"invalid policy id length %d, expected %d",
			len(policyId),
			common.Blake2b224Size,
		)
	}
	return common.NewBlake2b224(policyId), nil
}
