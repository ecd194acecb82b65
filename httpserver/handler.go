package httpserver

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/confidential-chat-gateway/evm"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// ChatRelay is the conversation surface the handler depends on.
type ChatRelay interface {
	Send(ctx context.Context, message string) (string, error)
	Reset()
	History() []interfaces.ChatTurn
}

// EVMClient is the chain surface the handler depends on.
type EVMClient interface {
	Connect(ctx context.Context, network, rpcURL string) (interfaces.NetworkStatus, error)
	Status(ctx context.Context) (interfaces.NetworkStatus, error)
	Balance(ctx context.Context, address string) (evm.Balance, error)
	TokenBalanceOf(ctx context.Context, tokenAddress, walletAddress string) (evm.TokenBalance, error)
	SendTransaction(ctx context.Context, to string, amountWei *big.Int, key *ecdsa.PrivateKey) (ethcommon.Hash, error)
	TransactionStatus(ctx context.Context, hashHex string) (evm.TxStatus, error)
}

// KeyManager is the signing-key surface the handler depends on.
type KeyManager interface {
	List(ctx context.Context) ([]interfaces.KeyObjectName, error)
	Load(ctx context.Context, name interfaces.KeyObjectName) (ethcommon.Address, error)
	Address() (ethcommon.Address, error)
	Signer() (*ecdsa.PrivateKey, error)
}

// Handler processes the gateway's API requests. It ties together the chat
// relay, the EVM client, and the key manager.
type Handler struct {
	relay ChatRelay
	evm   EVMClient
	keys  KeyManager
	log   *slog.Logger
}

// NewHandler creates a new HTTP request handler with the specified dependencies.
func NewHandler(relay ChatRelay, evmClient EVMClient, keys KeyManager, log *slog.Logger) *Handler {
	return &Handler{
		relay: relay,
		evm:   evmClient,
		keys:  keys,
		log:   log,
	}
}

// statusForError maps the service error taxonomy to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrInvalidAddress),
		errors.Is(err, interfaces.ErrEmptyMessage),
		errors.Is(err, interfaces.ErrUnknownNetwork),
		errors.Is(err, interfaces.ErrNotConnected),
		errors.Is(err, interfaces.ErrInvalidObjectName),
		errors.Is(err, interfaces.ErrInvalidLocationURI):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrObjectNotFound),
		errors.Is(err, interfaces.ErrNoKeyLoaded):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrDecryptionFailed):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	h.respondJSON(w, statusForError(err), map[string]string{"error": err.Error()})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	Turns    int    `json:"turns"`
}

// HandleChat processes POST /chat: relays the message to the completion
// endpoint and returns the assistant's reply.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.respondError(w, errors.New("failed to read request body"))
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return
	}

	reply, err := h.relay.Send(r.Context(), req.Message)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, chatResponse{
		Response: reply,
		Turns:    len(h.relay.History()),
	})
}

// HandleResetChat processes POST /reset_chat: discards the conversation.
func (h *Handler) HandleResetChat(w http.ResponseWriter, r *http.Request) {
	h.relay.Reset()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "chat reset"})
}

type connectRequest struct {
	Network string `json:"network"`
	RPCURL  string `json:"rpc_url"`
}

// HandleConnect processes GET|POST /api/evm/connect. GET takes network and
// rpc_url query parameters; POST takes the same fields as JSON.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			h.respondError(w, errors.New("failed to read request body"))
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
				return
			}
		}
	} else {
		req.Network = r.URL.Query().Get("network")
		req.RPCURL = r.URL.Query().Get("rpc_url")
	}

	status, err := h.evm.Connect(r.Context(), req.Network, req.RPCURL)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, networkStatusPayload(status))
}

// HandleStatus processes GET /api/evm/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.evm.Status(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, networkStatusPayload(status))
}

// networkStatusPayload renders big.Int fields as strings for JSON clients.
func networkStatusPayload(status interfaces.NetworkStatus) map[string]any {
	payload := map[string]any{
		"connected": status.Connected,
		"network":   status.Name,
	}
	if status.ChainID != nil {
		payload["chain_id"] = status.ChainID.String()
	}
	if status.Connected {
		payload["latest_block"] = status.LatestBlock
	}
	if status.GasPrice != nil {
		payload["gas_price"] = status.GasPrice.String()
	}
	return payload
}

// HandleBalance processes GET /api/evm/balance?address=&token_address=.
// Without token_address it returns the native-coin balance; with it, the
// ERC20 token balance.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	tokenAddress := r.URL.Query().Get("token_address")

	if tokenAddress != "" {
		balance, err := h.evm.TokenBalanceOf(r.Context(), tokenAddress, address)
		if err != nil {
			h.respondError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, balance)
		return
	}

	balance, err := h.evm.Balance(r.Context(), address)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, balance)
}

type sendRequest struct {
	To       string `json:"to"`
	ValueWei string `json:"value_wei"`
}

// HandleSendTransaction processes POST /api/evm/send: signs a plain value
// transfer with the loaded key and broadcasts it.
func (h *Handler) HandleSendTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.respondError(w, errors.New("failed to read request body"))
		return
	}

	var req sendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return
	}

	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.ValueWei), 10)
	if !ok || amount.Sign() < 0 {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "value_wei must be a non-negative decimal string"})
		return
	}

	key, err := h.keys.Signer()
	if err != nil {
		h.respondError(w, err)
		return
	}

	hash, err := h.evm.SendTransaction(r.Context(), req.To, amount, key)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"tx_hash": hash.Hex(),
		"status":  "submitted",
	})
}

// HandleTransactionStatus processes GET /api/evm/tx?hash=.
func (h *Handler) HandleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.evm.TransactionStatus(r.Context(), r.URL.Query().Get("hash"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

// HandleKeyList processes GET|POST /api/key/list.
func (h *Handler) HandleKeyList(w http.ResponseWriter, r *http.Request) {
	names, err := h.keys.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, name.String())
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

type loadRequest struct {
	Name string `json:"name"`
}

// HandleKeyLoad processes GET|POST /api/key/load. GET takes a name query
// parameter; POST takes it as JSON.
func (h *Handler) HandleKeyLoad(w http.ResponseWriter, r *http.Request) {
	var name string
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			h.respondError(w, errors.New("failed to read request body"))
			return
		}
		var req loadRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
				return
			}
		}
		name = req.Name
	} else {
		name = r.URL.Query().Get("name")
	}

	address, err := h.keys.Load(r.Context(), interfaces.KeyObjectName(name))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "loaded",
		"address": address.Hex(),
	})
}

// HandleKeyAddress processes GET /api/key/address.
func (h *Handler) HandleKeyAddress(w http.ResponseWriter, r *http.Request) {
	address, err := h.keys.Address()
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"address": address.Hex()})
}
