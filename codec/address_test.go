package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptToAddress_P2PK(t *testing.T) {
	script := "0008cd03a1e7be27b2f0e4a6e4f6f3e3e1e2e3e4e5e6e7e8e9eaebecedeeeff0f1f2f3f4"
	addr, ok := ScriptToAddress(script, Mainnet)
	require.True(t, ok)
	assert.True(t, len(addr) == 51)
	assert.Equal(t, byte('9'), addr[0])
}

func TestScriptToAddress_P2S_GenericVector(t *testing.T) {
	script := "100204a00b08cd021dde34603426402615658f1d970cfa7c7bd92ac81a8b16eeebff264d59ce4604ea02d192a39a8cc7a70173007301"
	addr, ok := ScriptToAddress(script, Mainnet)
	require.True(t, ok)
	assert.Equal(t, "88dhgzEuTXaQLG2u9aud6SkPCGyXvw8mQWLCWfkv6wwuC9X9gdzELR9mt2hHQaM654aamzscP8r45NsJ", addr)
}

func TestScriptToAddress_P2S_MinersFeeVector(t *testing.T) {
	script := "1005040004000e36100204a00b08cd0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798ea02d192a39a8cc7a701730073011001020402d19683030193a38cc7b2a57300000193c2b2a57301007473027303830108cdeeac93b1a57304"
	addr, ok := ScriptToAddress(script, Mainnet)
	require.True(t, ok)
	assert.Equal(t, "2iHkR7CWvD1R4j1yZg5bkeDRQavjAaVPeTDFGGLZduHyfWMuYpmhHocX8GJoaieTx78FntzJbCBVL6rf96ocJoZdmWBL2fci7NqWgAirppPQmZ7fN9V6z13Ay6brPriBKYqLp1bT2Fk4FkFLCfdPpe", addr)
}

func TestScriptToAddress_InvalidHex(t *testing.T) {
	_, ok := ScriptToAddress("not-hex", Mainnet)
	assert.False(t, ok)
}

func TestMinerPKToAddress_WrongLength(t *testing.T) {
	_, ok := MinerPKToAddress("aabb", Mainnet)
	assert.False(t, ok)
}

func TestValidateAddress(t *testing.T) {
	assert.True(t, ValidateAddress("9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA"))
	assert.True(t, ValidateAddress("BxKBaHkvrTvLZrDcZjcsxsF7aSsrN73ijeFZXtbj4CXZHHcvBtqSxQ"))
	assert.False(t, ValidateAddress("invalid"))
	assert.False(t, ValidateAddress("0invalidleadingzero"))
}

func TestAddressType(t *testing.T) {
	kind, ok := AddressType("9fRAWhdxEsTcdb8PhGNrZfwqa65zfkuYHAMmkQLcic1gdLSV5vA")
	require.True(t, ok)
	assert.Equal(t, "P2PK", kind)

	_, ok = AddressType("")
	assert.False(t, ok)
}

func TestBase58RoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x00, 0x00, 0x01, 0x02, 0x03},
		{0xff, 0xee, 0xdd},
		{},
		{0x00, 0x00, 0x00},
	}
	for _, c := range cases {
		encoded := Base58Encode(c)
		decoded, err := Base58Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, c, decoded)
	}
}

func TestBase58LeadingZeros(t *testing.T) {
	data := []byte{0x00, 0x00, 0x2a}
	encoded := Base58Encode(data)
	leadingOnes := 0
	for leadingOnes < len(encoded) && encoded[leadingOnes] == '1' {
		leadingOnes++
	}
	assert.Equal(t, 2, leadingOnes)
}

func TestScriptTemplateHash(t *testing.T) {
	hash := ScriptTemplateHash("0008cd03a1e7be27b2f0e4a6e4f6f3e3e1e2e3e4e5e6e7e8e9eaebecedeeeff0f1f2f3f4")
	assert.Len(t, hash, 64)

	assert.Equal(t, "", ScriptTemplateHash("zz"))
}
