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

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/mary"
	"github.com/blinklabs-io/plutigo/data"
	utxorpc "github.com/utxorpc/go-codegen/utxorpc/v1alpha/cardano"
)

const (
	datumOptionTypeHash = 0
	datumOptionTypeData = 1
)

// DatumOption attaches a datum to an output, either by hash or inline
type DatumOption struct {
	hash *common.Blake2b256
	data data.PlutusData
}

func NewDatumOptionHash(hash common.Blake2b256) *DatumOption {
	return &DatumOption{hash: &hash}
}

func NewDatumOptionInline(datum data.PlutusData) *DatumOption {
	return &DatumOption{data: datum}
}

func (d *DatumOption) Hash() *common.Blake2b256 {
	return d.hash
}

func (d *DatumOption) Inline() data.PlutusData {
	return d.data
}

func (d *DatumOption) UnmarshalCBOR(cborData []byte) error {
	datumOptionType, err := cbor.DecodeIdFromList(cborData)
	if err != nil {
		return err
	}
	switch datumOptionType {
	case datumOptionTypeHash:
		var tmpDatumHash struct {
			cbor.StructAsArray
			Type int
			Hash common.Blake2b256
		}
		if _, err := cbor.Decode(cborData, &tmpDatumHash); err != nil {
			return err
		}
		d.hash = &tmpDatumHash.Hash
	case datumOptionTypeData:
		var tmpDatumData struct {
			cbor.StructAsArray
			Type     int
			DataCbor []byte
		}
		if _, err := cbor.Decode(cborData, &tmpDatumData); err != nil {
			return err
		}
		tmpData, err := data.Decode(tmpDatumData.DataCbor)
		if err != nil {
			return err
		}
		d.data = tmpData
	default:
		return fmt.Errorf("unsupported datum option type: %d", datumOptionType)
	}
	return nil
}

func (d *DatumOption) MarshalCBOR() ([]byte, error) {
	var tmpObj []interface{}
	if d.hash != nil {
		tmpObj = []interface{}{datumOptionTypeHash, d.hash}
	} else if d.data != nil {
		dataCbor, err := data.Encode(d.data)
		if err != nil {
			return nil, err
		}
		tmpObj = []interface{}{
			datumOptionTypeData,
			cbor.Tag{Number: 24, Content: dataCbor},
		}
	} else {
		return nil, errors.New("unknown datum option type")
	}
	return cbor.Encode(&tmpObj)
}

// Output is a Conway-era transaction output that can be constructed
// programmatically, including inline datums and script references
type Output struct {
	cbor.DecodeStoreCbor
	OutputAddress common.Address                  `cbor:"0,keyasint,omitempty"`
	OutputAmount  mary.MaryTransactionOutputValue `cbor:"1,keyasint,omitempty"`
	DatumOption   *DatumOption                    `cbor:"2,keyasint,omitempty"`
	ScriptRef     *cbor.Tag                       `cbor:"3,keyasint,omitempty"`
}

// NewOutput creates an output paying the given value to an address
func NewOutput(
	address common.Address,
	amount uint64,
	assets *common.MultiAsset[common.MultiAssetTypeOutput],
) Output {
	return Output{
		OutputAddress: address,
		OutputAmount: mary.MaryTransactionOutputValue{
			Amount: amount,
			Assets: assets,
		},
	}
}

func (o *Output) UnmarshalCBOR(cborData []byte) error {
	type tOutput Output
	var tmp tOutput
	if _, err := cbor.Decode(cborData, &tmp); err != nil {
		return err
	}
	*o = Output(tmp)
	o.SetCbor(cborData)
	return nil
}

func (o *Output) MarshalCBOR() ([]byte, error) {
	return cbor.EncodeGeneric(o)
}

func (o Output) Address() common.Address {
	return o.OutputAddress
}

func (o Output) Amount() uint64 {
	return o.OutputAmount.Amount
}

func (o Output) Assets() *common.MultiAsset[common.MultiAssetTypeOutput] {
	return o.OutputAmount.Assets
}

func (o Output) DatumHash() *common.Blake2b256 {
	if o.DatumOption != nil {
		return o.DatumOption.hash
	}
	return nil
}

// Datum returns nil; inline datums built by this package are exposed via
// DatumOption instead of a lazy CBOR value
func (o Output) Datum() *cbor.LazyValue {
	return nil
}

func (o Output) Cbor() []byte {
	cborData := o.DecodeStoreCbor.Cbor()
	if cborData != nil {
		return cborData[:]
	}
	cborData, err := cbor.Encode(&o)
	if err != nil {
		return nil
	}
	return cborData
}

func (o Output) Utxorpc() *utxorpc.TxOutput {
	address, err := o.OutputAddress.Bytes()
	if err != nil {
		address = []byte{}
	}
	var assets []*utxorpc.Multiasset
	if o.Assets() != nil {
		tmpAssets := o.Assets()
		for _, policyId := range tmpAssets.Policies() {
			ma := &utxorpc.Multiasset{
				PolicyId: policyId.Bytes(),
			}
			for _, assetName := range tmpAssets.Assets(policyId) {
				amount := tmpAssets.Asset(policyId, assetName)
				asset := &utxorpc.Asset{
					Name:       assetName,
					OutputCoin: amount.Uint64(),
				}
				ma.Assets = append(ma.Assets, asset)
			}
			assets = append(assets, ma)
		}
	}
	ret := &utxorpc.TxOutput{
		Address: address,
		Coin:    o.Amount(),
		Assets:  assets,
	}
	if o.DatumHash() != nil {
		ret.Datum = &utxorpc.Datum{
			Hash: o.DatumHash().Bytes(),
		}
	}
	return ret
}
