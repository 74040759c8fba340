// Copyright 2026 fanjia1024
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

package job

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hashA = "1111111111111111111111111111111111111111111111111111111111111111"
	hashB = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

func TestDecode_PayloadJob(t *testing.T) {
	raw := `{"id":"k3j9x","type":"payload","timestamp":1700000000000,"network":"og-evm",
		"inputHash":"` + hashA + `","outputHash":"` + hashB + `","modelType":"llm","msg":"m","settlement_type":"settle-batch"}`
	j, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, KindPayload, j.Kind)
	require.NotNil(t, j.Payload)
	assert.Nil(t, j.Payment)
	assert.Equal(t, "k3j9x", j.ID())
	assert.Equal(t, "og-evm", j.Network())
	assert.Equal(t, "llm", j.Payload.ModelType)
	assert.True(t, j.Payload.IsBatchable())
}

func TestDecode_PayloadJobImmediate(t *testing.T) {
	raw := `{"id":"a","type":"payload","network":"og-evm","inputHash":"` + hashA + `","outputHash":"` + hashA + `","msg":"","settlement_type":"individual"}`
	j, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.False(t, j.Payload.IsBatchable())
}

func TestDecode_PaymentJob(t *testing.T) {
	raw := `{"id":"p1","type":"payment","timestamp":1,
		"payload":{"x402Version":1,"scheme":"exact","network":"base-sepolia","payload":{"signature":"0xabc"}},
		"requirements":{"scheme":"exact","network":"base-sepolia","maxAmountRequired":"1000","asset":{"address":"0xUSDC"}}}`
	j, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, KindPayment, j.Kind)
	assert.Equal(t, "p1", j.ID())
	assert.Equal(t, "base-sepolia", j.Network())
	assert.Equal(t, "0xUSDC", j.Payment.Requirements.AssetTag())
	assert.JSONEq(t, `{"signature":"0xabc"}`, string(j.Payment.Payload.Payload))
}

func TestDecode_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{`,
		"unknown type":      `{"id":"x","type":"refund"}`,
		"missing type":      `{"id":"x"}`,
		"payload no net":    `{"id":"x","type":"payload","inputHash":"` + hashA + `","outputHash":"` + hashA + `"}`,
		"payload bad hash":  `{"id":"x","type":"payload","network":"n","inputHash":"0x12","outputHash":"` + hashA + `"}`,
		"payload no output": `{"id":"x","type":"payload","network":"n","inputHash":"` + hashA + `"}`,
		"payload no id":     `{"type":"payload","network":"n","inputHash":"` + hashA + `","outputHash":"` + hashA + `"}`,
		"payment no reqs":   `{"id":"x","type":"payment","payload":{"x402Version":1,"scheme":"exact","network":"n","payload":{}}}`,
		"payment no net":    `{"id":"x","type":"payment","payload":{"x402Version":1,"scheme":"exact","network":"n","payload":{}},"requirements":{"scheme":"exact"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalidJob)
		})
	}
}

func TestEncodeDecode_PayloadJob(t *testing.T) {
	j := NewPayloadJob("og-evm", hashA, hashB, "hello", SettlementTypeBatch, "")
	data, err := Encode(j)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"payload"`)
	assert.Contains(t, string(data), `"settlement_type":"settle-batch"`)
	assert.NotContains(t, string(data), "modelType")

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, j.Payload, back.Payload)
}

func TestEncode_RejectsEmptyVariant(t *testing.T) {
	_, err := Encode(&Job{Kind: KindPayment})
	assert.ErrorIs(t, err, ErrInvalidJob)
	_, err = Encode(&Job{Kind: "other"})
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 8)
	assert.Equal(t, strings.ToLower(id), id)
	assert.NotEqual(t, id, NewID())
}

func TestAssetTag(t *testing.T) {
	cases := []struct {
		asset string
		want  string
	}{
		{``, "unknown"},
		{`"0xabc"`, "0xabc"},
		{`{"address":"0xdef","decimals":6}`, "0xdef"},
		{`{"symbol":"USDC"}`, "unknown"},
		{`42`, "unknown"},
	}
	for _, c := range cases {
		r := PaymentRequirements{Asset: json.RawMessage(c.asset)}
		assert.Equal(t, c.want, r.AssetTag(), c.asset)
	}
}

func TestNormalizeHex(t *testing.T) {
	assert.Equal(t, "0xabc", NormalizeHex("abc"))
	assert.Equal(t, "0xabc", NormalizeHex("0xabc"))
	assert.Equal(t, "0xabc", NormalizeHex("0Xabc"))
}

func TestParseHash_PrefixEquivalence(t *testing.T) {
	bare, err := ParseHash(hashA)
	require.NoError(t, err)
	prefixed, err := ParseHash("0x" + hashA)
	require.NoError(t, err)
	assert.Equal(t, bare, prefixed)
}

func TestParseHash_Errors(t *testing.T) {
	for _, s := range []string{"", "0x", "zz", "0x1234", hashA + "00"} {
		_, err := ParseHash(s)
		assert.Error(t, err, s)
	}
}
