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

package txbuilder_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/conway"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"
	"github.com/blinklabs-io/plutigo/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/txbuilder"
	"github.com/blinklabs-io/txbuilder/coinselect"
	"github.com/blinklabs-io/txbuilder/value"
)

const (
	testPaymentAddress = "addr1qytna5k2fq9ler0fuk45j7zfwv7t2zwhp777nvdjqqfr5tz8ztpwnk8zq5ngetcz5k5mckgkajnygtsra9aej2h3ek5seupmvd"
	testChangeAddress  = "addr1qyln2c2cx5jc4hw768pwz60n5245462dvp4auqcw09rl2xz07huw84puu6cea3qe0ce3apks7hjckqkh5ad4uax0l9ws0q9xty"
	testScriptAddress  = "addr1z8snz7c4974vzdpxu65ruphl3zjdvtxw8strf2c2tmqnxz2j2c79gy9l76sdg0xwhd7r0c0kna0tycz4y5s6mlenh8pq0xmsha"
	testStakeAddress   = "stake1u9usfr6nz6d5qaz63kr5yszdwd0dcgnlngh4und7n6cjx6qh02h9m"
	testTxHashA        = "0000000000000000000000000000000000000000000000000000000000000001"
	testTxHashB        = "0000000000000000000000000000000000000000000000000000000000000002"
	testTxHashC        = "0000000000000000000000000000000000000000000000000000000000000003"
	testPolicyId       = "00000000000000000000000000000000000000000000000000000bad"
)

func testProtocolParameters() conway.ConwayProtocolParameters {
	return conway.ConwayProtocolParameters{
		MinFeeA:              44,
		MinFeeB:              155381,
		KeyDeposit:           2_000_000,
		PoolDeposit:          500_000_000,
		AdaPerUtxoByte:       4310,
		CollateralPercentage: 150,
		MaxCollateralInputs:  3,
		CostModels: map[uint][]int64{
			0: {100, 200, 300},
			1: {100, 200, 300},
			2: {100, 200, 300},
		},
		ExecutionCosts: common.ExUnitPrice{
			MemPrice:  &cbor.Rat{Rat: big.NewRat(577, 10000)},
			StepPrice: &cbor.Rat{Rat: big.NewRat(721, 10000000)},
		},
		MaxTxExUnits: common.ExUnits{
			Memory: 14000000,
			Steps:  10000000000,
		},
		GovActionDeposit:           100_000_000_000,
		DRepDeposit:                500_000_000,
		MinFeeRefScriptCostPerByte: &cbor.Rat{Rat: big.NewRat(15, 1)},
	}
}

func testUtxo(
	t *testing.T,
	txHash string,
	idx int,
	address string,
	amount uint64,
) common.Utxo {
	t.Helper()
	addr, err := common.NewAddress(address)
	require.NoError(t, err)
	output := txbuilder.NewOutput(addr, amount, nil)
	return common.Utxo{
		Id:     shelley.NewShelleyTransactionInput(txHash, idx),
		Output: &output,
	}
}

type mockProvider struct {
	utxos     map[string][]common.Utxo
	rewards   map[string]uint64
	exUnits   map[txbuilder.RedeemerKey]common.ExUnits
	submitted [][]byte
}

func (m *mockProvider) UnspentOutputs(
	address common.Address,
) ([]common.Utxo, error) {
	return m.utxos[address.String()], nil
}

func (m *mockProvider) RewardsBalance(
	rewardAddress common.Address,
) (uint64, error) {
	return m.rewards[rewardAddress.String()], nil
}

func (m *mockProvider) EvaluateTransaction(
	txCbor []byte,
) (map[txbuilder.RedeemerKey]common.ExUnits, error) {
	return m.exUnits, nil
}

func (m *mockProvider) SubmitTransaction(txCbor []byte) (string, error) {
	m.submitted = append(m.submitted, txCbor)
	return "dummy-hash", nil
}

type mockEvaluator struct {
	exUnits map[txbuilder.RedeemerKey]common.ExUnits
	err     error
}

func (m mockEvaluator) Evaluate(
	tx *txbuilder.Transaction,
	resolved []common.Utxo,
) (map[txbuilder.RedeemerKey]common.ExUnits, error) {
	return m.exUnits, m.err
}

// sumOutputs totals the lovelace across the transaction's outputs
func sumOutputs(tx *txbuilder.Transaction) uint64 {
	var total uint64
	for _, output := range tx.Outputs() {
		total += output.Amount()
	}
	return total
}

func TestBuildSimplePayment(t *testing.T) {
	pparams := testProtocolParameters()
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(pparams),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	tx, err := builder.Build()
	require.NoError(t, err)

	outputs := tx.Outputs()
	require.Len(t, outputs, 2)
	assert.Equal(t, uint64(2_000_000), outputs[0].Amount())
	assert.Equal(t, testPaymentAddress, outputs[0].Address().String())
	assert.Equal(t, testChangeAddress, outputs[1].Address().String())

	// Value conservation: inputs == outputs + fee
	assert.Equal(t, uint64(10_000_000), sumOutputs(tx)+tx.Fee())

	// Fee covers the linear fee for the serialized size. The estimate was
	// made against a draft carrying a placeholder witness, so the unsigned
	// transaction must come in under it
	minFee := common.CalculateMinFee(
		len(tx.Cbor()),
		pparams.MinFeeA,
		pparams.MinFeeB,
	)
	assert.GreaterOrEqual(t, tx.Fee(), minFee)

	require.Len(t, tx.Inputs(), 1)
	assert.Equal(t, testTxHashA, tx.Inputs()[0].Id().String())
}

func TestBuildDeterminism(t *testing.T) {
	build := func() []byte {
		builder := txbuilder.New(
			txbuilder.WithProtocolParameters(testProtocolParameters()),
			txbuilder.WithChangeAddress(testChangeAddress),
			txbuilder.WithAvailableUtxos([]common.Utxo{
				testUtxo(t, testTxHashB, 1, testChangeAddress, 5_000_000),
				testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
			}),
		)
		builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
		builder.SetMetadata(674, map[string]any{"msg": "hello"})
		tx, err := builder.Build()
		require.NoError(t, err)
		return tx.Cbor()
	}
	first := build()
	second := build()
	require.NotEmpty(t, first)
	assert.True(t, bytes.Equal(first, second))
}

func TestBuildInsufficientFunds(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{}),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	_, err := builder.Build()
	require.Error(t, err)
	var insufficientErr coinselect.InsufficientFundsError
	assert.ErrorAs(t, err, &insufficientErr)
}

func TestBuildMissingProtocolParameters(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithChangeAddress(testChangeAddress),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	_, err := builder.Build()
	require.Error(t, err)
	var missingErr txbuilder.MissingConfigurationError
	assert.ErrorAs(t, err, &missingErr)
}

func TestBuildDeferredIntentErrors(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.PayToAddress("not-an-address", value.NewValue(2_000_000))
	builder.MintAssets("not-a-policy", []byte("token"), 100, nil)
	_, err := builder.Build()
	require.Error(t, err)
	var intentErr txbuilder.IntentError
	assert.ErrorAs(t, err, &intentErr)
	// Both failures are reported together
	assert.Contains(t, err.Error(), "send")
	assert.Contains(t, err.Error(), "mint")
}

func TestBuildDustChangeAbsorbedIntoFee(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 2_500_000),
		}),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_300_000))
	tx, err := builder.Build()
	require.NoError(t, err)

	// Leftover lovelace is below the minimum output coin, so it becomes
	// part of the fee instead of a change output
	require.Len(t, tx.Outputs(), 1)
	assert.Equal(t, uint64(2_300_000), tx.Outputs()[0].Amount())
	assert.Equal(t, uint64(200_000), tx.Fee())
}

func TestBuildMintedAssetsInChange(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	builder.MintAssets(testPolicyId, []byte("token"), 100, nil)
	tx, err := builder.Build()
	require.NoError(t, err)

	require.NotNil(t, tx.Body.TxMint)
	outputs := tx.Outputs()
	require.Len(t, outputs, 2)
	changeAssets := outputs[1].Assets()
	require.NotNil(t, changeAssets)
	policies := changeAssets.Policies()
	require.Len(t, policies, 1)
	amount := changeAssets.Asset(policies[0], []byte("token"))
	require.NotNil(t, amount)
	assert.Equal(t, int64(100), amount.Int64())
}

func TestBuildWithdrawal(t *testing.T) {
	provider := &mockProvider{
		rewards: map[string]uint64{
			testStakeAddress: 5_000_000,
		},
	}
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithProvider(provider),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(7_000_000))
	builder.Withdraw(testStakeAddress, nil, nil)
	tx, err := builder.Build()
	require.NoError(t, err)

	require.Len(t, tx.Body.TxWithdrawals, 1)
	for addr, amount := range tx.Body.TxWithdrawals {
		assert.Equal(t, testStakeAddress, addr.String())
		assert.Equal(t, uint64(5_000_000), amount)
	}
	// Conservation includes the withdrawn rewards
	assert.Equal(
		t,
		uint64(10_000_000+5_000_000),
		sumOutputs(tx)+tx.Fee(),
	)
}

func TestBuildStakeRegistration(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.RegisterRewardAddress(testStakeAddress)
	tx, err := builder.Build()
	require.NoError(t, err)

	certs := tx.Body.TxCertificates.Items()
	require.Len(t, certs, 1)
	assert.Equal(t, uint(common.CertificateTypeRegistration), certs[0].Type)

	// The key deposit leaves the transaction alongside the fee
	assert.Equal(
		t,
		uint64(10_000_000),
		sumOutputs(tx)+tx.Fee()+2_000_000,
	)
}

func TestBuildStakeDeregistrationRefund(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.DeregisterRewardAddress(testStakeAddress, nil)
	tx, err := builder.Build()
	require.NoError(t, err)

	certs := tx.Body.TxCertificates.Items()
	require.Len(t, certs, 1)
	assert.Equal(t, uint(common.CertificateTypeDeregistration), certs[0].Type)

	// The deposit refund is credited to the transaction
	assert.Equal(
		t,
		uint64(10_000_000+2_000_000),
		sumOutputs(tx)+tx.Fee(),
	)
}

func TestBuildScriptSpendWithCollateral(t *testing.T) {
	pparams := testProtocolParameters()
	spendKey := txbuilder.RedeemerKey{
		Tag:   common.RedeemerTagSpend,
		Index: 0,
	}
	evaluator := mockEvaluator{
		exUnits: map[txbuilder.RedeemerKey]common.ExUnits{
			spendKey: {Memory: 100000, Steps: 50000000},
		},
	}
	scriptUtxo := testUtxo(t, testTxHashB, 0, testScriptAddress, 7_000_000)
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(pparams),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithEvaluator(evaluator),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
		txbuilder.WithCollateralUtxos([]common.Utxo{
			testUtxo(t, testTxHashC, 0, testChangeAddress, 5_000_000),
		}),
	)
	redeemer := data.NewInteger(big.NewInt(42))
	datum := data.NewInteger(big.NewInt(7))
	builder.AddScriptInput(scriptUtxo, redeemer, datum)
	builder.AttachScript(common.PlutusV3Script([]byte{0x01, 0x02, 0x03}))
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	tx, err := builder.Build()
	require.NoError(t, err)

	// Redeemer carries the evaluated execution units
	require.Len(t, tx.WitnessSet.Redeemers, 1)
	redeemerValue, ok := tx.WitnessSet.Redeemers[spendKey]
	require.True(t, ok)
	assert.Equal(t, int64(100000), redeemerValue.ExUnits.Memory)
	assert.Equal(t, int64(50000000), redeemerValue.ExUnits.Steps)

	// Script, datum, and the binding hash are all present
	assert.Len(t, tx.WitnessSet.PlutusV3Scripts.Items(), 1)
	assert.Len(t, tx.WitnessSet.PlutusData.Items(), 1)
	require.NotNil(t, tx.Body.TxScriptDataHash)

	// Collateral requirement is a percentage of the fee, rounded up
	require.NotEmpty(t, tx.Body.TxCollateral.Items())
	expectedCollateral := (tx.Fee()*150 + 99) / 100
	assert.Equal(t, expectedCollateral, tx.Body.TxTotalCollateral)
	// Surplus from the 5 ADA collateral input is returned
	require.NotNil(t, tx.Body.TxCollateralReturn)
	assert.Equal(
		t,
		uint64(5_000_000)-expectedCollateral,
		tx.Body.TxCollateralReturn.Amount(),
	)

	// Execution units feed the fee on top of the linear portion
	minFee := common.CalculateMinFee(
		len(tx.Cbor()),
		pparams.MinFeeA,
		pparams.MinFeeB,
	)
	assert.Greater(t, tx.Fee(), minFee)
}

func TestBuildScriptSpendWithoutCollateralFails(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithEvaluator(mockEvaluator{}),
		txbuilder.WithAvailableUtxos([]common.Utxo{}),
		txbuilder.WithCollateralUtxos([]common.Utxo{}),
	)
	scriptUtxo := testUtxo(t, testTxHashB, 0, testScriptAddress, 7_000_000)
	builder.AddScriptInput(scriptUtxo, data.NewInteger(big.NewInt(1)), nil)
	_, err := builder.Build()
	require.Error(t, err)
	var collateralErr txbuilder.CollateralNotFoundError
	assert.ErrorAs(t, err, &collateralErr)
}

func TestBuildScriptedDustCollateralCoversFinalFee(t *testing.T) {
	spendKey := txbuilder.RedeemerKey{
		Tag:   common.RedeemerTagSpend,
		Index: 0,
	}
	evaluator := mockEvaluator{
		exUnits: map[txbuilder.RedeemerKey]common.ExUnits{
			spendKey: {Memory: 100000, Steps: 50000000},
		},
	}
	scriptUtxo := testUtxo(t, testTxHashB, 0, testScriptAddress, 7_000_000)
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithEvaluator(evaluator),
		txbuilder.WithCollateralUtxos([]common.Utxo{
			testUtxo(t, testTxHashC, 0, testChangeAddress, 5_000_000),
		}),
		txbuilder.WithMinFee(500_000),
	)
	builder.AddScriptInput(
		scriptUtxo,
		data.NewInteger(big.NewInt(1)),
		data.NewInteger(big.NewInt(2)),
	)
	builder.AttachScript(common.PlutusV3Script([]byte{0x01, 0x02, 0x03}))
	// Leaves 50_000 lovelace, below the minimum output coin, so it is
	// absorbed into the fee
	builder.PayToAddress(testPaymentAddress, value.NewValue(6_450_000))
	tx, err := builder.Build()
	require.NoError(t, err)

	require.Len(t, tx.Outputs(), 1)
	assert.Equal(t, uint64(550_000), tx.Fee())
	// The collateral requirement is computed from the fee the transaction
	// actually pays, absorbed dust included
	expectedCollateral := (tx.Fee()*150 + 99) / 100
	assert.Equal(t, expectedCollateral, tx.Body.TxTotalCollateral)
}

func TestBuildScriptSpendRequiresEvaluator(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
		txbuilder.WithCollateralUtxos([]common.Utxo{
			testUtxo(t, testTxHashC, 0, testChangeAddress, 5_000_000),
		}),
	)
	scriptUtxo := testUtxo(t, testTxHashB, 0, testScriptAddress, 7_000_000)
	builder.AddScriptInput(scriptUtxo, data.NewInteger(big.NewInt(1)), nil)
	_, err := builder.Build()
	require.Error(t, err)
	var missingErr txbuilder.MissingConfigurationError
	assert.ErrorAs(t, err, &missingErr)
	assert.Contains(t, err.Error(), "evaluator")
}

func TestBuildNilCertificate(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.AddCertificate(nil, nil)
	_, err := builder.Build()
	require.Error(t, err)
	var intentErr txbuilder.IntentError
	assert.ErrorAs(t, err, &intentErr)
	assert.Contains(t, err.Error(), "nil certificate")
}

func TestBuildSmallChangeAboveDustThreshold(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 3_000_000),
		}),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_300_000))
	tx, err := builder.Build()
	require.NoError(t, err)

	// Leftover clears the size-derived minimum output coin, so it becomes a
	// change output instead of being absorbed into the fee
	require.Len(t, tx.Outputs(), 2)
	assert.Equal(t, uint64(3_000_000), sumOutputs(tx)+tx.Fee())
	assert.Less(t, tx.Fee(), uint64(200_000))
	assert.GreaterOrEqual(t, tx.Outputs()[1].Amount(), uint64(400_000))
}

func TestBuildProposalDefaultDeposit(t *testing.T) {
	stakeAddr, err := common.NewAddress(testStakeAddress)
	require.NoError(t, err)
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 200_000_000_000),
		}),
	)
	builder.Propose(common.ProposalProcedure{
		RewardAccount: stakeAddr,
		GovAction: common.GovActionWrapper{
			Type:   common.GovActionTypeInfo,
			Action: &common.InfoGovAction{Type: common.GovActionTypeInfo},
		},
	})
	tx, err := builder.Build()
	require.NoError(t, err)

	require.Len(t, tx.Body.TxProposalProcedures, 1)
	assert.Equal(
		t,
		uint64(100_000_000_000),
		tx.Body.TxProposalProcedures[0].Deposit,
	)
	// The defaulted deposit leaves the transaction alongside the fee
	assert.Equal(
		t,
		uint64(200_000_000_000),
		sumOutputs(tx)+tx.Fee()+100_000_000_000,
	)
}

func TestBuildDuplicateInput(t *testing.T) {
	utxo := testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000)
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
	)
	builder.AddInput(utxo)
	builder.AddInput(utxo)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	_, err := builder.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate input")
}

func TestBuildMetadata(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	builder.SetMetadata(674, map[string]any{"msg": "hello"})
	tx, err := builder.Build()
	require.NoError(t, err)

	require.NotNil(t, tx.Body.TxAuxDataHash)
	require.NotNil(t, tx.TxMetadata)
	expectedHash := common.Blake2b256Hash(tx.TxMetadata)
	assert.Equal(t, expectedHash, *tx.Body.TxAuxDataHash)
}

func TestBuildValidityInterval(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	builder.ValidFromSlot(100)
	builder.ValidToSlot(200)
	tx, err := builder.Build()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), tx.Body.TxValidityIntervalStart)
	assert.Equal(t, uint64(200), tx.Body.Ttl)
}

func TestBuildCanonicalInputOrder(t *testing.T) {
	// Inputs supplied out of order end up sorted by id and index
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
	)
	builder.AddInput(testUtxo(t, testTxHashB, 1, testChangeAddress, 3_000_000))
	builder.AddInput(testUtxo(t, testTxHashB, 0, testChangeAddress, 3_000_000))
	builder.AddInput(testUtxo(t, testTxHashA, 5, testChangeAddress, 3_000_000))
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	tx, err := builder.Build()
	require.NoError(t, err)

	inputs := tx.Inputs()
	require.Len(t, inputs, 3)
	assert.Equal(t, testTxHashA, inputs[0].Id().String())
	assert.Equal(t, uint32(5), inputs[0].Index())
	assert.Equal(t, testTxHashB, inputs[1].Id().String())
	assert.Equal(t, uint32(0), inputs[1].Index())
	assert.Equal(t, uint32(1), inputs[2].Index())
}

func TestBuildAndSubmit(t *testing.T) {
	provider := &mockProvider{
		utxos: map[string][]common.Utxo{
			testChangeAddress: {
				testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
			},
		},
	}
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithProvider(provider),
		txbuilder.WithChangeAddress(testChangeAddress),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	txHash, err := builder.BuildAndSubmit()
	require.NoError(t, err)
	assert.Equal(t, "dummy-hash", txHash)
	require.Len(t, provider.submitted, 1)
	assert.NotEmpty(t, provider.submitted[0])
}

func TestBuildFeeIterationCap(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
		txbuilder.WithMaxFeeIterations(1),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	_, err := builder.Build()
	require.Error(t, err)
	var feeErr txbuilder.FeeCalculationError
	if !errors.As(err, &feeErr) {
		// A single iteration can converge only when the first draft's fee
		// estimate is zero, which never happens with nonzero params
		t.Fatalf("expected fee calculation error, got %s", err)
	}
}

func TestBuildMultiAssetSelection(t *testing.T) {
	policyId, err := hex.DecodeString(testPolicyId)
	require.NoError(t, err)
	makeAssets := func(amount int64) *common.MultiAsset[common.MultiAssetTypeOutput] {
		assets := common.NewMultiAsset[common.MultiAssetTypeOutput](
			map[common.Blake2b224]map[cbor.ByteString]*big.Int{
				common.NewBlake2b224(policyId): {
					cbor.NewByteString([]byte("token")): big.NewInt(amount),
				},
			},
		)
		return &assets
	}
	addr, err := common.NewAddress(testChangeAddress)
	require.NoError(t, err)
	assetOutput := txbuilder.NewOutput(addr, 2_000_000, makeAssets(100))
	assetUtxo := common.Utxo{
		Id:     shelley.NewShelleyTransactionInput(testTxHashB, 0),
		Output: &assetOutput,
	}
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 5_000_000),
			assetUtxo,
		}),
	)
	builder.PayToAddress(
		testPaymentAddress,
		value.NewValueWithAssets(1_500_000, makeAssets(50)),
	)
	tx, err := builder.Build()
	require.NoError(t, err)

	// The pure-ADA UTxO alone cannot cover the asset, so both are selected
	require.Len(t, tx.Inputs(), 2)
	outputs := tx.Outputs()
	require.Len(t, outputs, 2)
	paid := outputs[0].Assets()
	require.NotNil(t, paid)
	assert.Equal(
		t,
		int64(50),
		paid.Asset(common.NewBlake2b224(policyId), []byte("token")).Int64(),
	)
	// The other 50 tokens come back as change
	changeAssets := outputs[1].Assets()
	require.NotNil(t, changeAssets)
	assert.Equal(
		t,
		int64(50),
		changeAssets.Asset(common.NewBlake2b224(policyId), []byte("token")).Int64(),
	)
	assert.Equal(t, uint64(7_000_000), sumOutputs(tx)+tx.Fee())
}

func TestBuildMinFeeFloor(t *testing.T) {
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
		txbuilder.WithMinFee(500_000),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	tx, err := builder.Build()
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), tx.Fee())
}

func TestBuildRequiredSignersSorted(t *testing.T) {
	keyHi := strings.Repeat("ff", 28)
	keyLo := strings.Repeat("00", 28)
	builder := txbuilder.New(
		txbuilder.WithProtocolParameters(testProtocolParameters()),
		txbuilder.WithChangeAddress(testChangeAddress),
		txbuilder.WithAvailableUtxos([]common.Utxo{
			testUtxo(t, testTxHashA, 0, testChangeAddress, 10_000_000),
		}),
	)
	builder.PayToAddress(testPaymentAddress, value.NewValue(2_000_000))
	builder.AddRequiredSigner(keyHi)
	builder.AddRequiredSigner(keyLo)
	builder.AddRequiredSigner(keyHi)
	tx, err := builder.Build()
	require.NoError(t, err)

	signers := tx.Body.TxRequiredSigners.Items()
	require.Len(t, signers, 2)
	assert.Equal(t, keyLo, signers[0].String())
	assert.Equal(t, keyHi, signers[1].String())
}
