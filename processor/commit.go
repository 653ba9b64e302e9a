package processor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/utxobox/indexer/store"
)

// commit runs the batch's effects in the commit order the spec fixes:
// block, transactions, boxes, inputs (spend-mark then insert), data
// inputs, assets, tokens, address stats, and (every 100th block) a
// network-stats snapshot. token_holders and search_index are
// maintained in the same transaction as an additive step.
func (p *Processor) commit(ctx context.Context, b *batch) error {
	return p.s.WithTx(ctx, func(tx *store.Tx) error {
		if err := commitBlock(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing block row")
		}
		if err := commitTransactions(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing transaction rows")
		}
		if err := commitBoxes(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing box rows")
		}
		if err := commitInputs(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing input rows")
		}
		if err := commitDataInputs(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing data input rows")
		}
		if err := commitAssets(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing box asset rows")
		}
		if err := commitTokens(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing token rows")
		}
		if err := commitAddressStats(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing address stats")
		}
		if err := commitTokenHolders(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing token holders")
		}
		if err := commitSearchIndex(ctx, tx, b); err != nil {
			return errors.Wrap(err, "committing search index")
		}
		if b.block.Height%networkStatsInterval == 0 {
			if err := commitNetworkStats(ctx, tx, b); err != nil {
				return errors.Wrap(err, "committing network stats snapshot")
			}
		}
		return nil
	})
}

func commitBlock(ctx context.Context, tx *store.Tx, b *batch) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO blocks
			(block_id, parent_id, height, timestamp, difficulty, size, total_coins_in_outputs, tx_count, miner_address, miner_reward, main_chain, global_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(block_id) DO UPDATE SET main_chain = 1`,
		b.block.ID, b.block.ParentID, b.block.Height, b.block.Timestamp, b.block.Difficulty,
		b.blockSize, b.blockCoins, b.txCount, nullableString(b.minerAddress), b.minerReward, b.globalBlockIndexOf())
	return err
}

// globalBlockIndexOf exists only so commitBlock can read the index the
// processor assigned during buildBatch without batch needing to carry
// a redundant field name collision with Processor's own counter.
func (b *batch) globalBlockIndexOf() int64 { return b.assignedBlockIndex }

func commitTransactions(ctx context.Context, tx *store.Tx, b *batch) error {
	for _, t := range b.txs {
		_, err := tx.Exec(ctx, `
			INSERT INTO transactions
				(tx_id, block_id, inclusion_height, timestamp, index_in_block, global_index, coinbase, size, input_count, output_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tx_id) DO NOTHING`,
			t.txID, t.blockID, t.height, t.timestamp, t.indexInBlock, t.globalIndex, boolToInt(t.coinbase), t.size, t.inputCount, t.outputCount)
		if err != nil {
			return err
		}
	}
	return nil
}

func commitBoxes(ctx context.Context, tx *store.Tx, b *batch) error {
	for _, box := range b.boxes {
		_, err := tx.Exec(ctx, `
			INSERT INTO boxes
				(box_id, tx_id, output_index, script_bytes, script_template_hash, address, value, creation_height, settlement_height, registers, global_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(box_id) DO NOTHING`,
			box.boxID, box.txID, box.outputIndex, box.scriptBytes, box.templateHash, box.address, box.value,
			box.creationHeight, b.block.Height, nullableString(box.registers), box.globalIndex)
		if err != nil {
			return err
		}
	}
	return nil
}

func commitInputs(ctx context.Context, tx *store.Tx, b *batch) error {
	for _, in := range b.inputs {
		// Best-effort spend mark: affects zero rows when the
		// referenced box predates this indexer's ingest window. Not
		// an error (see the spend-update-on-unknown-box_id note).
		_, err := tx.Exec(ctx, `
			UPDATE boxes SET spent_tx_id = ?, spent_input_index = ?, spent_height = ?
			WHERE box_id = ? AND spent_tx_id IS NULL`,
			in.txID, in.inputIndex, in.height, in.boxID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO inputs (id, tx_id, box_id, input_index, proof_bytes)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tx_id, box_id, input_index) DO NOTHING`,
			in.id, in.txID, in.boxID, in.inputIndex, in.proofBytes)
		if err != nil {
			return err
		}
	}
	return nil
}

func commitDataInputs(ctx context.Context, tx *store.Tx, b *batch) error {
	for _, di := range b.dataInputs {
		_, err := tx.Exec(ctx, `
			INSERT INTO data_inputs (id, tx_id, box_id, input_index)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(tx_id, box_id, input_index) DO NOTHING`,
			di.id, di.txID, di.boxID, di.inputIndex)
		if err != nil {
			return err
		}
	}
	return nil
}

func commitAssets(ctx context.Context, tx *store.Tx, b *batch) error {
	for _, a := range b.assets {
		_, err := tx.Exec(ctx, `
			INSERT INTO box_assets (id, box_id, token_id, amount, asset_index)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(box_id, asset_index) DO NOTHING`,
			a.id, a.boxID, a.tokenID, a.amount, a.assetIndex)
		if err != nil {
			return err
		}
	}
	return nil
}

func commitTokens(ctx context.Context, tx *store.Tx, b *batch) error {
	for _, t := range b.tokens {
		_, err := tx.Exec(ctx, `
			INSERT INTO tokens (token_id, minting_box_id, emission_amount, name, description, decimals, creation_height)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(token_id) DO NOTHING`,
			t.tokenID, t.mintingBoxID, t.emissionAmount, nullableString(t.name), nullableString(t.description), nullableInt(t.decimals), t.creationHeight)
		if err != nil {
			return err
		}
	}
	return nil
}

func commitAddressStats(ctx context.Context, tx *store.Tx, b *batch) error {
	for _, touch := range b.touches {
		_, err := tx.Exec(ctx, `
			INSERT INTO address_stats (address, tx_count, first_seen_height, last_seen_height, updated_at)
			VALUES (?, 1, ?, ?, ?)
			ON CONFLICT(address) DO UPDATE SET
				tx_count = tx_count + 1,
				last_seen_height = excluded.last_seen_height,
				updated_at = excluded.updated_at`,
			touch.address, touch.height, touch.height, b.block.Timestamp)
		if err != nil {
			return err
		}
	}
	return nil
}

// commitTokenHolders recomputes each touched (token, address) pair's
// balance from box_assets joined against the current spend state,
// grounded in the network-stats-style "derive from current rows"
// approach original_source uses for its own running aggregates.
func commitTokenHolders(ctx context.Context, tx *store.Tx, b *batch) error {
	seen := map[[2]string]bool{}
	for _, a := range b.assets {
		var address string
		for _, box := range b.boxes {
			if box.boxID == a.boxID {
				address = box.address
				break
			}
		}
		if address == "" {
			continue
		}
		key := [2]string{a.tokenID, address}
		if seen[key] {
			continue
		}
		seen[key] = true

		var balance int64
		row := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(box_assets.amount), 0)
			FROM box_assets
			JOIN boxes ON boxes.box_id = box_assets.box_id
			WHERE box_assets.token_id = ? AND boxes.address = ? AND boxes.spent_tx_id IS NULL`,
			a.tokenID, address)
		if err := row.Scan(&balance); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO token_holders (token_id, address, balance)
			VALUES (?, ?, ?)
			ON CONFLICT(token_id, address) DO UPDATE SET balance = excluded.balance`,
			a.tokenID, address, balance)
		if err != nil {
			return err
		}
	}

	// Boxes spent by this block's inputs lower their holders' balances.
	for _, in := range b.inputs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO token_holders (token_id, address, balance)
			SELECT ba.token_id, bx.address, (SELECT COALESCE(SUM(a2.amount), 0) FROM box_assets a2
				JOIN boxes b2 ON b2.box_id = a2.box_id
				WHERE a2.token_id = ba.token_id AND b2.address = bx.address AND b2.spent_tx_id IS NULL)
			FROM box_assets ba JOIN boxes bx ON bx.box_id = ba.box_id
			WHERE ba.box_id = ?
			ON CONFLICT(token_id, address) DO UPDATE SET balance = excluded.balance`, in.boxID); err != nil {
			return err
		}
	}
	return nil
}

// commitSearchIndex appends lookup rows for the block id, each tx id,
// each newly touched address, and each newly registered token id.
func commitSearchIndex(ctx context.Context, tx *store.Tx, b *batch) error {
	insert := func(kind, key, value string) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO search_index (kind, key, value) VALUES (?, ?, ?)
			ON CONFLICT(kind, key) DO NOTHING`,
			kind, key, value)
		return err
	}

	if err := insert("block", b.block.ID, b.block.ID); err != nil {
		return err
	}

	seenAddr := map[string]bool{}
	for _, t := range b.txs {
		if err := insert("tx", t.txID, t.txID); err != nil {
			return err
		}
	}
	for _, touch := range b.touches {
		if seenAddr[touch.address] {
			continue
		}
		seenAddr[touch.address] = true
		if err := insert("address", touch.address, touch.address); err != nil {
			return err
		}
	}
	for _, t := range b.tokens {
		if err := insert("token", t.tokenID, t.tokenID); err != nil {
			return err
		}
	}
	return nil
}

// commitNetworkStats writes the approximate periodic snapshot. As
// original_source notes, total_coins is an estimate, not an exact
// UTXO sum.
func commitNetworkStats(ctx context.Context, tx *store.Tx, b *batch) error {
	const coinsPerBlockEstimate = 75_000_000_000
	totalCoins := b.block.Height * coinsPerBlockEstimate
	hashrate := float64(0)
	if b.block.Difficulty != "" {
		if d, ok := parseApproxFloat(b.block.Difficulty); ok {
			hashrate = d / 120
		}
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO network_stats (timestamp, height, difficulty, block_size, block_coins, total_coins, hashrate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(timestamp) DO NOTHING`,
		b.block.Timestamp, b.block.Height, b.block.Difficulty, b.blockSize, b.blockCoins, totalCoins, hashrate)
	return err
}
