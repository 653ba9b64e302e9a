package codec

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Network selects the address prefix byte composition.
type Network byte

const (
	Mainnet Network = 0x00
	Testnet Network = 0x10
)

// Address type nibbles, combined with the network byte to form the
// leading prefix byte of an encoded address.
const (
	addrTypeP2PK  byte = 0x01
	addrTypeP2SH  byte = 0x02
	addrTypeP2S   byte = 0x03
)

const checksumLen = 4

// ScriptToAddress decodes a hex-encoded script and derives its address.
// Invalid hex fails soft to ("", false) so callers can fall back to
// storing the raw hex as a queryable placeholder.
func ScriptToAddress(scriptHex string, network Network) (string, bool) {
	script, err := hex.DecodeString(scriptHex)
	if err != nil || len(script) == 0 {
		return "", false
	}

	if len(script) >= 36 && script[0] == 0x00 && script[1] == 0x08 && script[2] == 0xcd {
		return encodeP2PK(script[3:36], network), true
	}

	return encodeP2S(script, network), true
}

// MinerPKToAddress derives a P2PK address from a 33-byte compressed
// public key, as reported in a block header's minerPk field.
func MinerPKToAddress(pkHex string, network Network) (string, bool) {
	pk, err := hex.DecodeString(pkHex)
	if err != nil || len(pk) != 33 {
		return "", false
	}
	return encodeP2PK(pk, network), true
}

func encodeP2PK(pk []byte, network Network) string {
	return encodeWithPrefix(prefixByte(network, addrTypeP2PK), pk)
}

func encodeP2S(script []byte, network Network) string {
	return encodeWithPrefix(prefixByte(network, addrTypeP2S), script)
}

func prefixByte(network Network, addrType byte) byte {
	return byte(network) | addrType
}

func encodeWithPrefix(prefix byte, payload []byte) string {
	content := make([]byte, 0, 1+len(payload)+checksumLen)
	content = append(content, prefix)
	content = append(content, payload...)
	content = append(content, checksum(content)...)
	return Base58Encode(content)
}

func checksum(content []byte) []byte {
	sum := blake2b256(content)
	return sum[:checksumLen]
}

func blake2b256(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// ScriptTemplateHash buckets a script by its leading bytes. This is a
// coarse, opaque grouping key, not a real template extraction — full
// script-tree parsing is out of scope (spec §1 non-goals).
func ScriptTemplateHash(scriptHex string) string {
	script, err := hex.DecodeString(scriptHex)
	if err != nil || len(script) == 0 {
		return ""
	}

	n := len(script)
	if n > 8 {
		n = 8
	}

	sum := blake2b256(script[:n])
	return hex.EncodeToString(sum)
}

// ValidateAddress checks the address's length and alphabet only; it
// does not verify the checksum.
func ValidateAddress(address string) bool {
	if len(address) < 30 {
		return false
	}
	for i := 0; i < len(address); i++ {
		if base58Index[address[i]] < 0 {
			return false
		}
	}
	return true
}

// AddressType reports the coarse address kind from its leading
// character. It is not authoritative (no checksum or network-byte
// decode) and exists only to annotate read-API responses.
func AddressType(address string) (string, bool) {
	if address == "" {
		return "", false
	}
	switch address[0] {
	case '9':
		return "P2PK", true
	case '2':
		return "P2S", true
	case '3':
		return "P2SH", true
	default:
		return "", false
	}
}
