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
	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"
	utxorpc "github.com/utxorpc/go-codegen/utxorpc/v1alpha/cardano"
)

// RedeemerKey identifies a single script invocation within a transaction
type RedeemerKey struct {
	cbor.StructAsArray
	Tag   common.RedeemerTag
	Index uint32
}

// RedeemerValue carries the redeemer argument and its execution budget
type RedeemerValue struct {
	cbor.StructAsArray
	Data    cbor.RawMessage
	ExUnits common.ExUnits
}

// TransactionBody is a Conway-era transaction body. Optional fields carry
// their protocol-defined numeric keys and are omitted when absent. Set
// fields must be populated in canonical order by the assembler; the
// encoder does not reorder them
type TransactionBody struct {
	cbor.DecodeStoreCbor
	TxInputs                cbor.SetType[shelley.ShelleyTransactionInput] `cbor:"0,keyasint"`
	TxOutputs               []Output                                      `cbor:"1,keyasint"`
	TxFee                   uint64                                        `cbor:"2,keyasint"`
	Ttl                     uint64                                        `cbor:"3,keyasint,omitempty"`
	TxCertificates          cbor.SetType[common.CertificateWrapper]       `cbor:"4,keyasint,omitempty,omitzero"`
	TxWithdrawals           map[*common.Address]uint64                    `cbor:"5,keyasint,omitempty"`
	TxAuxDataHash           *common.Blake2b256                            `cbor:"7,keyasint,omitempty"`
	TxValidityIntervalStart uint64                                        `cbor:"8,keyasint,omitempty"`
	TxMint                  *common.MultiAsset[common.MultiAssetTypeMint] `cbor:"9,keyasint,omitempty"`
	TxScriptDataHash        *common.Blake2b256                            `cbor:"11,keyasint,omitempty"`
	TxCollateral            cbor.SetType[shelley.ShelleyTransactionInput] `cbor:"13,keyasint,omitempty,omitzero"`
	TxRequiredSigners       cbor.SetType[common.Blake2b224]               `cbor:"14,keyasint,omitempty,omitzero"`
	NetworkId               uint8                                         `cbor:"15,keyasint,omitempty"`
	TxCollateralReturn      *Output                                       `cbor:"16,keyasint,omitempty"`
	TxTotalCollateral       uint64                                        `cbor:"17,keyasint,omitempty"`
	TxReferenceInputs       cbor.SetType[shelley.ShelleyTransactionInput] `cbor:"18,keyasint,omitempty,omitzero"`
	TxVotingProcedures      common.VotingProcedures                       `cbor:"19,keyasint,omitempty"`
	TxProposalProcedures    []common.ProposalProcedure                    `cbor:"20,keyasint,omitempty"`
	TxCurrentTreasuryValue  int64                                         `cbor:"21,keyasint,omitempty"`
	TxDonation              uint64                                        `cbor:"22,keyasint,omitempty"`
}

func (b *TransactionBody) MarshalCBOR() ([]byte, error) {
	return cbor.EncodeGeneric(b)
}

func (b *TransactionBody) UnmarshalCBOR(cborData []byte) error {
	type tTransactionBody TransactionBody
	var tmp tTransactionBody
	if _, err := cbor.Decode(cborData, &tmp); err != nil {
		return err
	}
	*b = TransactionBody(tmp)
	b.SetCbor(cborData)
	return nil
}

// Hash returns the Blake2b-256 hash of the serialized body, which is the
// transaction id
func (b *TransactionBody) Hash() common.Blake2b256 {
	cborData := b.Cbor()
	if cborData == nil {
		tmpData, err := cbor.Encode(b)
		if err != nil {
			return common.Blake2b256{}
		}
		b.SetCbor(tmpData)
		cborData = tmpData
	}
	return common.Blake2b256Hash(cborData)
}

func (b *TransactionBody) Inputs() []shelley.ShelleyTransactionInput {
	return b.TxInputs.Items()
}

func (b *TransactionBody) Outputs() []Output {
	return b.TxOutputs
}

func (b *TransactionBody) Fee() uint64 {
	return b.TxFee
}

func (b *TransactionBody) Certificates() []common.Certificate {
	certs := b.TxCertificates.Items()
	ret := make([]common.Certificate, len(certs))
	for i, cert := range certs {
		ret[i] = cert.Certificate
	}
	return ret
}

// TransactionWitnessSet is a Conway-era witness set
type TransactionWitnessSet struct {
	cbor.DecodeStoreCbor
	VkeyWitnesses      cbor.SetType[common.VkeyWitness]      `cbor:"0,keyasint,omitempty,omitzero"`
	NativeScripts      cbor.SetType[common.NativeScript]     `cbor:"1,keyasint,omitempty,omitzero"`
	BootstrapWitnesses cbor.SetType[common.BootstrapWitness] `cbor:"2,keyasint,omitempty,omitzero"`
	PlutusV1Scripts    cbor.SetType[[]byte]                  `cbor:"3,keyasint,omitempty,omitzero"`
	PlutusData         cbor.SetType[common.Datum]            `cbor:"4,keyasint,omitempty,omitzero"`
	Redeemers          map[RedeemerKey]RedeemerValue         `cbor:"5,keyasint,omitempty"`
	PlutusV2Scripts    cbor.SetType[[]byte]                  `cbor:"6,keyasint,omitempty,omitzero"`
	PlutusV3Scripts    cbor.SetType[[]byte]                  `cbor:"7,keyasint,omitempty,omitzero"`
}

func (w *TransactionWitnessSet) MarshalCBOR() ([]byte, error) {
	return cbor.EncodeGeneric(w)
}

func (w *TransactionWitnessSet) UnmarshalCBOR(cborData []byte) error {
	type tTransactionWitnessSet TransactionWitnessSet
	var tmp tTransactionWitnessSet
	if _, err := cbor.Decode(cborData, &tmp); err != nil {
		return err
	}
	*w = TransactionWitnessSet(tmp)
	w.SetCbor(cborData)
	return nil
}

// Transaction is a final, immutable transaction produced by the builder
type Transaction struct {
	cbor.StructAsArray
	cbor.DecodeStoreCbor
	Body       TransactionBody
	WitnessSet TransactionWitnessSet
	IsTxValid  bool
	TxMetadata cbor.RawMessage
}

func (t *Transaction) MarshalCBOR() ([]byte, error) {
	bodyCbor, err := cbor.Encode(&t.Body)
	if err != nil {
		return nil, err
	}
	witnessCbor, err := cbor.Encode(&t.WitnessSet)
	if err != nil {
		return nil, err
	}
	tmpObj := []any{
		cbor.RawMessage(bodyCbor),
		cbor.RawMessage(witnessCbor),
		t.IsTxValid,
	}
	if t.TxMetadata != nil {
		tmpObj = append(tmpObj, t.TxMetadata)
	} else {
		tmpObj = append(tmpObj, nil)
	}
	return cbor.Encode(&tmpObj)
}

// Cbor returns the canonical serialized transaction
func (t *Transaction) Cbor() []byte {
	cborData := t.DecodeStoreCbor.Cbor()
	if cborData != nil {
		return cborData[:]
	}
	cborData, err := cbor.Encode(t)
	if err != nil {
		return nil
	}
	t.SetCbor(cborData)
	return cborData
}

// Hash returns the transaction id (the hash of the transaction body)
func (t *Transaction) Hash() common.Blake2b256 {
	return t.Body.Hash()
}

func (t *Transaction) Fee() uint64 {
	return t.Body.TxFee
}

func (t *Transaction) Inputs() []shelley.ShelleyTransactionInput {
	return t.Body.Inputs()
}

func (t *Transaction) Outputs() []Output {
	return t.Body.Outputs()
}

// Produced returns the UTxOs created by this transaction
func (t *Transaction) Produced() []common.Utxo {
	ret := make([]common.Utxo, 0, len(t.Body.TxOutputs))
	for idx := range t.Body.TxOutputs {
		ret = append(
			ret,
			common.Utxo{
				Id: shelley.NewShelleyTransactionInput(
					t.Hash().String(),
					idx,
				),
				Output: &t.Body.TxOutputs[idx],
			},
		)
	}
	return ret
}

// Utxorpc converts the transaction to its utxorpc representation
func (t *Transaction) Utxorpc() *utxorpc.Tx {
	tmpHash := t.Hash()
	ret := &utxorpc.Tx{
		Fee:  t.Body.TxFee,
		Hash: tmpHash.Bytes(),
	}
	for _, input := range t.Body.TxInputs.Items() {
		ret.Inputs = append(ret.Inputs, input.Utxorpc())
	}
	for idx := range t.Body.TxOutputs {
		ret.Outputs = append(ret.Outputs, t.Body.TxOutputs[idx].Utxorpc())
	}
	return ret
}
