package processor

import "encoding/json"

// encodeRegisters serializes a box's additionalRegisters map as
// compact JSON for storage in boxes.registers. The column is opaque
// to the store; callers that need decoded values go back through
// codec.DecodeRegisterString/DecodeRegisterInt on the raw hex.
func encodeRegisters(registers map[string]string) (string, error) {
	b, err := json.Marshal(registers)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
