// Package processor turns one opaque chain block document into the
// set of relational rows the store persists, and commits them in a
// single transaction. It owns the monotonic synthetic-key counters;
// everything else is stateless given a Store and a block.
package processor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/utxobox/indexer/chainmodel"
	"github.com/utxobox/indexer/codec"
	"github.com/utxobox/indexer/store"
)

// MalformedBlockError marks a block document missing a field the
// processor cannot proceed without. The whole block fails; nothing is
// written.
type MalformedBlockError struct {
	Reason string
}

func (e *MalformedBlockError) Error() string {
	return fmt.Sprintf("processor: malformed block: %s", e.Reason)
}

// networkStatsInterval is how often (in block height) a network_stats
// snapshot row is written: at every height that is a multiple of it.
const networkStatsInterval = 100

// Processor owns the six monotonic counters and applies blocks to a
// Store strictly in height order. It is not safe for concurrent use;
// the sync loop is its only caller.
type Processor struct {
	s *store.Store

	globalBlockIndex int64
	globalTxIndex    int64
	globalBoxIndex   int64
	inputID          int64
	dataInputID      int64
	boxAssetID       int64
}

// New rehydrates the counters from MAX(...) queries on their
// respective tables, so a restarted process doesn't collide on
// synthetic keys it already wrote in a prior run.
func New(ctx context.Context, s *store.Store) (*Processor, error) {
	p := &Processor{s: s}

	maxes := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COALESCE(MAX(global_index), -1) FROM blocks", &p.globalBlockIndex},
		{"SELECT COALESCE(MAX(global_index), -1) FROM transactions", &p.globalTxIndex},
		{"SELECT COALESCE(MAX(global_index), -1) FROM boxes", &p.globalBoxIndex},
		{"SELECT COALESCE(MAX(id), -1) FROM inputs", &p.inputID},
		{"SELECT COALESCE(MAX(id), -1) FROM data_inputs", &p.dataInputID},
		{"SELECT COALESCE(MAX(id), -1) FROM box_assets", &p.boxAssetID},
	}

	for _, m := range maxes {
		v, found, err := store.QueryOne(ctx, s, m.query, func(row *sql.Row) (int64, error) {
			var n int64
			err := row.Scan(&n)
			return n, err
		})
		if err != nil {
			return nil, errors.Wrap(err, "priming processor counters")
		}
		if found {
			*m.dst = v
		} else {
			*m.dst = -1
		}
	}

	return p, nil
}

type boxRow struct {
	boxID          string
	txID           string
	outputIndex    int
	scriptBytes    string
	templateHash   string
	address        string
	value          int64
	creationHeight int64
	registers      sql.NullString
	globalIndex    int64
}

type tokenRow struct {
	tokenID        string
	mintingBoxID   string
	emissionAmount int64
	name           sql.NullString
	description    sql.NullString
	decimals       sql.NullInt64
	creationHeight int64
}

type addressTouch struct {
	address string
	height  int64
}

// batch is everything apply needs to write for one block, assembled
// before the transaction opens so the commit phase is pure I/O.
type batch struct {
	block              chainmodel.BlockHeader
	assignedBlockIndex int64
	txCount            int
	blockSize          int64
	blockCoins         int64
	minerAddress       sql.NullString
	minerReward        int64

	txs         []txRow
	boxes       []boxRow
	inputs      []inputRow
	dataInputs  []dataInputRow
	assets      []boxAssetRow
	tokens      []tokenRow
	touches     []addressTouch
}

type txRow struct {
	txID           string
	blockID        string
	height         int64
	timestamp      int64
	indexInBlock   int
	globalIndex    int64
	coinbase       bool
	size           int64
	inputCount     int
	outputCount    int
}

type inputRow struct {
	id          int64
	txID        string
	boxID       string
	inputIndex  int
	proofBytes  string
	height      int64
}

type dataInputRow struct {
	id         int64
	txID       string
	boxID      string
	inputIndex int
}

type boxAssetRow struct {
	id         int64
	boxID      string
	tokenID    string
	amount     int64
	assetIndex int
}

// Apply parses, batches, and commits one block. On any error the
// counters are left untouched (they only advance after a successful
// commit) and nothing is written.
func (p *Processor) Apply(ctx context.Context, doc chainmodel.BlockDocument) error {
	// buildBatch advances the counters in place as it assigns
	// synthetic keys; snapshot first so any failure, build-time or
	// commit-time, leaves them exactly as they were found.
	snapshot := *p

	b, err := p.buildBatch(doc)
	if err != nil {
		*p = snapshot
		return err
	}

	if err := p.commit(ctx, b); err != nil {
		*p = snapshot
		return err
	}
	return nil
}

func (p *Processor) buildBatch(doc chainmodel.BlockDocument) (*batch, error) {
	h := doc.Header
	if h.ID == "" {
		return nil, &MalformedBlockError{Reason: "missing header.id"}
	}
	if h.ParentID == "" {
		return nil, &MalformedBlockError{Reason: "missing header.parentId"}
	}

	b := &batch{block: h}
	b.txCount = len(doc.BlockTransactions.Transactions)

	if minerAddr, ok := codec.MinerPKToAddress(h.MinerPK, codec.Mainnet); ok {
		b.minerAddress = sql.NullString{String: minerAddr, Valid: true}
	}

	for txIdx, tx := range doc.BlockTransactions.Transactions {
		if tx.ID == "" {
			return nil, &MalformedBlockError{Reason: "missing transaction.id"}
		}

		inputCount := len(tx.Inputs)
		coinbase := txIdx == 0 || inputCount == 0

		var firstInputBoxID string
		if inputCount > 0 {
			firstInputBoxID = tx.Inputs[0].BoxID
		}

		p.globalTxIndex++
		b.txs = append(b.txs, txRow{
			txID:         tx.ID,
			blockID:      h.ID,
			height:       h.Height,
			timestamp:    h.Timestamp,
			indexInBlock: txIdx,
			globalIndex:  p.globalTxIndex,
			coinbase:     coinbase,
			size:         tx.Size,
			inputCount:   inputCount,
			outputCount:  len(tx.Outputs),
		})
		b.blockSize += tx.Size

		for inputIdx, in := range tx.Inputs {
			p.inputID++
			b.inputs = append(b.inputs, inputRow{
				id:         p.inputID,
				txID:       tx.ID,
				boxID:      in.BoxID,
				inputIndex: inputIdx,
				proofBytes: in.SpendingProof.ProofBytes,
				height:     h.Height,
			})
		}

		for dataIdx, di := range tx.DataInputs {
			p.dataInputID++
			b.dataInputs = append(b.dataInputs, dataInputRow{
				id:         p.dataInputID,
				txID:       tx.ID,
				boxID:      di.BoxID,
				inputIndex: dataIdx,
			})
		}

		for outIdx, out := range tx.Outputs {
			if outIdx == 0 && txIdx == 0 {
				b.minerReward = out.Value
			}
			b.blockCoins += out.Value

			address, ok := codec.ScriptToAddress(out.ErgoTree, codec.Mainnet)
			if !ok {
				// Fail-soft: preserve queryability with the raw hex
				// rather than dropping the box.
				address = out.ErgoTree
			}
			templateHash := codec.ScriptTemplateHash(out.ErgoTree)

			p.globalBoxIndex++
			box := boxRow{
				boxID:          out.BoxID,
				txID:           tx.ID,
				outputIndex:    outIdx,
				scriptBytes:    out.ErgoTree,
				templateHash:   templateHash,
				address:        address,
				value:          out.Value,
				creationHeight: out.CreationHeight,
				globalIndex:    p.globalBoxIndex,
			}
			if len(out.AdditionalRegisters) > 0 {
				if encoded, err := encodeRegisters(out.AdditionalRegisters); err == nil {
					box.registers = sql.NullString{String: encoded, Valid: true}
				}
			}
			b.boxes = append(b.boxes, box)
			b.touches = append(b.touches, addressTouch{address: address, height: h.Height})

			for assetIdx, asset := range out.Assets {
				p.boxAssetID++
				b.assets = append(b.assets, boxAssetRow{
					id:         p.boxAssetID,
					boxID:      out.BoxID,
					tokenID:    asset.TokenID,
					amount:     asset.Amount,
					assetIndex: assetIdx,
				})

				if assetIdx == 0 && firstInputBoxID != "" && asset.TokenID == firstInputBoxID {
					tr := tokenRow{
						tokenID:        asset.TokenID,
						mintingBoxID:   out.BoxID,
						emissionAmount: asset.Amount,
						creationHeight: out.CreationHeight,
					}
					if r4, ok := out.AdditionalRegisters["R4"]; ok {
						if name, ok := codec.DecodeRegisterString(r4); ok {
							tr.name = sql.NullString{String: name, Valid: true}
						}
					}
					if r5, ok := out.AdditionalRegisters["R5"]; ok {
						if desc, ok := codec.DecodeRegisterString(r5); ok {
							tr.description = sql.NullString{String: desc, Valid: true}
						}
					}
					if r6, ok := out.AdditionalRegisters["R6"]; ok {
						if decimals, ok := codec.DecodeRegisterInt(r6); ok {
							tr.decimals = sql.NullInt64{Int64: int64(decimals), Valid: true}
						}
					}
					b.tokens = append(b.tokens, tr)
				}
			}
		}
	}

	p.globalBlockIndex++
	b.assignedBlockIndex = p.globalBlockIndex
	return b, nil
}
