package chainmodel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBlockJSON = `{
	"header": {
		"id": "block1",
		"parentId": "block0",
		"height": 100,
		"timestamp": 1600000000000,
		"difficulty": "1234567890123456789",
		"minerPk": "03a1e7be27b2f0e4a6e4f6f3e3e1e2e3e4e5e6e7e8e9eaebecedeeeff0f1f2f3f4"
	},
	"blockTransactions": {
		"transactions": [
			{
				"id": "tx1",
				"size": 250,
				"inputs": [
					{"boxId": "box0", "spendingProof": {"proofBytes": ""}}
				],
				"outputs": [
					{
						"boxId": "box1",
						"value": 67500000000,
						"ergoTree": "0008cd03a1e7be27b2f0e4a6e4f6f3e3e1e2e3e4e5e6e7e8e9eaebecedeeeff0f1f2f3f4",
						"creationHeight": 100,
						"assets": [{"tokenId": "box0", "amount": 1000}],
						"additionalRegisters": {"R4": "0e03464f4f"}
					}
				]
			}
		]
	}
}`

func TestBlockDocument_Unmarshal(t *testing.T) {
	var doc BlockDocument
	require.NoError(t, json.Unmarshal([]byte(sampleBlockJSON), &doc))

	assert.Equal(t, "block1", doc.Header.ID)
	assert.Equal(t, int64(100), doc.Header.Height)
	assert.Equal(t, "1234567890123456789", doc.Header.Difficulty)

	require.Len(t, doc.BlockTransactions.Transactions, 1)
	tx := doc.BlockTransactions.Transactions[0]
	assert.Equal(t, "tx1", tx.ID)
	require.Len(t, tx.Inputs, 1)
	assert.Equal(t, "box0", tx.Inputs[0].BoxID)
	require.Len(t, tx.Outputs, 1)
	assert.Equal(t, int64(67500000000), tx.Outputs[0].Value)
	require.Len(t, tx.Outputs[0].Assets, 1)
	assert.Equal(t, "box0", tx.Outputs[0].Assets[0].TokenID)
	assert.Equal(t, "0e03464f4f", tx.Outputs[0].AdditionalRegisters["R4"])
}

func TestTxDocument_CoinbaseShape(t *testing.T) {
	var tx TxDocument
	require.NoError(t, json.Unmarshal([]byte(`{"id":"coinbase-tx","inputs":[],"outputs":[]}`), &tx))
	assert.Empty(t, tx.Inputs)
}
