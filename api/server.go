// Package api is the indexer's minimal read HTTP surface: status,
// aggregate stats, and point lookups by id/address. It is explicitly
// ambient scaffolding, not part of the hard-core sync/store contract,
// but every repo in the retrieval pack that plays an indexer role
// ships one — grounded directly in
// daglabs-btcd/apiserver/server/routes.go's makeHandler adapter and
// daglabs-btcd/apiserver/utils.HandlerError.
package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/utxobox/indexer/store"
	"github.com/utxobox/indexer/sync"
)

const (
	routeParamID      = "id"
	routeParamAddress = "address"

	queryParamLimit  = "limit"
	queryParamOffset = "offset"
	queryParamQ      = "q"

	defaultBoxesLimit = 100
	maxBoxesLimit     = 1000
)

// Server bundles the dependencies route handlers need: the store for
// reads and the sync service for /status.
type Server struct {
	store *store.Store
	sv    *sync.Service
	router *mux.Router
}

// New builds a Server and registers its routes on a fresh mux.Router.
func New(s *store.Store, sv *sync.Service) *Server {
	srv := &Server{store: s, sv: sv, router: mux.NewRouter()}
	srv.addRoutes()
	return srv
}

// Handler returns the http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler { return s.router }

type handlerFunc func(r *http.Request) (interface{}, *HandlerError)

func makeHandler(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, hErr := h(r)
		if hErr != nil {
			sendError(w, hErr)
			return
		}
		sendJSON(w, http.StatusOK, response)
	}
}

func sendError(w http.ResponseWriter, hErr *HandlerError) {
	sendJSON(w, hErr.Code, map[string]string{"error": hErr.ClientMessage})
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) addRoutes() {
	s.router.HandleFunc("/status", makeHandler(s.statusHandler)).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", makeHandler(s.statsHandler)).Methods(http.MethodGet)
	s.router.HandleFunc(fmt.Sprintf("/blocks/{%s}", routeParamID), makeHandler(s.blockHandler)).Methods(http.MethodGet)
	s.router.HandleFunc(fmt.Sprintf("/transactions/{%s}", routeParamID), makeHandler(s.transactionHandler)).Methods(http.MethodGet)
	s.router.HandleFunc(fmt.Sprintf("/addresses/{%s}/boxes", routeParamAddress), makeHandler(s.addressBoxesHandler)).Methods(http.MethodGet)
	s.router.HandleFunc("/search", makeHandler(s.searchHandler)).Methods(http.MethodGet)
}

func (s *Server) statusHandler(r *http.Request) (interface{}, *HandlerError) {
	return s.sv.Status(r.Context()), nil
}

func (s *Server) statsHandler(r *http.Request) (interface{}, *HandlerError) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		return nil, NewHandlerError(http.StatusInternalServerError, err.Error())
	}
	return stats, nil
}

// BlockSummary is the /blocks/{id} response shape.
type BlockSummary struct {
	BlockID      string `json:"blockId"`
	ParentID     string `json:"parentId"`
	Height       int64  `json:"height"`
	Timestamp    int64  `json:"timestamp"`
	TxCount      int64  `json:"txCount"`
	MinerAddress string `json:"minerAddress,omitempty"`
	MinerReward  int64  `json:"minerReward"`
	MainChain    bool   `json:"mainChain"`
}

func (s *Server) blockHandler(r *http.Request) (interface{}, *HandlerError) {
	id := mux.Vars(r)[routeParamID]
	block, found, err := store.QueryOne(r.Context(), s.store, `
		SELECT block_id, parent_id, height, timestamp, tx_count, COALESCE(miner_address, ''), miner_reward, main_chain
		FROM blocks WHERE block_id = ?`, scanBlock, id)
	if err != nil {
		return nil, NewHandlerError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return nil, NewHandlerError(http.StatusNotFound, "block not found")
	}
	return block, nil
}

func scanBlock(row *sql.Row) (BlockSummary, error) {
	var b BlockSummary
	var mainChain int
	err := row.Scan(&b.BlockID, &b.ParentID, &b.Height, &b.Timestamp, &b.TxCount, &b.MinerAddress, &b.MinerReward, &mainChain)
	b.MainChain = mainChain == 1
	return b, err
}

// TransactionSummary is the /transactions/{id} response shape.
type TransactionSummary struct {
	TxID            string `json:"txId"`
	BlockID         string `json:"blockId"`
	InclusionHeight int64  `json:"inclusionHeight"`
	Timestamp       int64  `json:"timestamp"`
	Coinbase        bool   `json:"coinbase"`
	InputCount      int64  `json:"inputCount"`
	OutputCount     int64  `json:"outputCount"`
}

func (s *Server) transactionHandler(r *http.Request) (interface{}, *HandlerError) {
	id := mux.Vars(r)[routeParamID]
	tx, found, err := store.QueryOne(r.Context(), s.store, `
		SELECT tx_id, block_id, inclusion_height, timestamp, coinbase, input_count, output_count
		FROM transactions WHERE tx_id = ?`, scanTransaction, id)
	if err != nil {
		return nil, NewHandlerError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return nil, NewHandlerError(http.StatusNotFound, "transaction not found")
	}
	return tx, nil
}

func scanTransaction(row *sql.Row) (TransactionSummary, error) {
	var t TransactionSummary
	var coinbase int
	err := row.Scan(&t.TxID, &t.BlockID, &t.InclusionHeight, &t.Timestamp, &coinbase, &t.InputCount, &t.OutputCount)
	t.Coinbase = coinbase == 1
	return t, err
}

// BoxSummary is one entry in the /addresses/{address}/boxes response.
type BoxSummary struct {
	BoxID          string `json:"boxId"`
	TxID           string `json:"txId"`
	Value          int64  `json:"value"`
	CreationHeight int64  `json:"creationHeight"`
}

func (s *Server) addressBoxesHandler(r *http.Request) (interface{}, *HandlerError) {
	address := mux.Vars(r)[routeParamAddress]

	limit := defaultBoxesLimit
	if v := r.URL.Query().Get(queryParamLimit); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, NewHandlerError(http.StatusUnprocessableEntity, fmt.Sprintf("invalid %s: %s", queryParamLimit, err))
		}
		limit = parsed
	}
	if limit <= 0 || limit > maxBoxesLimit {
		limit = maxBoxesLimit
	}

	offset := 0
	if v := r.URL.Query().Get(queryParamOffset); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, NewHandlerError(http.StatusUnprocessableEntity, fmt.Sprintf("invalid %s: %s", queryParamOffset, err))
		}
		offset = parsed
	}

	boxes, err := store.QueryAll(r.Context(), s.store, `
		SELECT box_id, tx_id, value, creation_height FROM boxes
		WHERE address = ? AND spent_tx_id IS NULL
		ORDER BY global_index DESC LIMIT ? OFFSET ?`, scanBox, address, limit, offset)
	if err != nil {
		return nil, NewHandlerError(http.StatusInternalServerError, err.Error())
	}
	return boxes, nil
}

func scanBox(rows *sql.Rows) (BoxSummary, error) {
	var b BoxSummary
	err := rows.Scan(&b.BoxID, &b.TxID, &b.Value, &b.CreationHeight)
	return b, err
}

// SearchResult is one entry in the /search response.
type SearchResult struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) searchHandler(r *http.Request) (interface{}, *HandlerError) {
	q := r.URL.Query().Get(queryParamQ)
	if q == "" {
		return nil, NewHandlerError(http.StatusUnprocessableEntity, "missing 'q' query parameter")
	}

	results, err := store.QueryAll(r.Context(), s.store, `
		SELECT kind, key, value FROM search_index WHERE key LIKE ? LIMIT 50`, scanSearchResult, q+"%")
	if err != nil {
		return nil, NewHandlerError(http.StatusInternalServerError, err.Error())
	}
	return results, nil
}

func scanSearchResult(rows *sql.Rows) (SearchResult, error) {
	var r SearchResult
	err := rows.Scan(&r.Kind, &r.Key, &r.Value)
	return r, err
}
