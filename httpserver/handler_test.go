package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/confidential-chat-gateway/evm"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	reply   string
	err     error
	history []interfaces.ChatTurn
	resets  int
}

func (f *fakeRelay) Send(ctx context.Context, message string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.history = append(f.history,
		interfaces.ChatTurn{Role: interfaces.RoleUser, Content: message},
		interfaces.ChatTurn{Role: interfaces.RoleAssistant, Content: f.reply},
	)
	return f.reply, nil
}

func (f *fakeRelay) Reset() { f.resets++; f.history = nil }

func (f *fakeRelay) History() []interfaces.ChatTurn { return f.history }

type fakeEVM struct {
	status     interfaces.NetworkStatus
	connectErr error
	balance    evm.Balance
	balanceErr error
	txHash     ethcommon.Hash
	sendErr    error
}

func (f *fakeEVM) Connect(ctx context.Context, network, rpcURL string) (interfaces.NetworkStatus, error) {
	return f.status, f.connectErr
}

func (f *fakeEVM) Status(ctx context.Context) (interfaces.NetworkStatus, error) {
	return f.status, nil
}

func (f *fakeEVM) Balance(ctx context.Context, address string) (evm.Balance, error) {
	return f.balance, f.balanceErr
}

func (f *fakeEVM) TokenBalanceOf(ctx context.Context, tokenAddress, walletAddress string) (evm.TokenBalance, error) {
	return evm.TokenBalance{}, errors.New("no token configured")
}

func (f *fakeEVM) SendTransaction(ctx context.Context, to string, amountWei *big.Int, key *ecdsa.PrivateKey) (ethcommon.Hash, error) {
	return f.txHash, f.sendErr
}

func (f *fakeEVM) TransactionStatus(ctx context.Context, hashHex string) (evm.TxStatus, error) {
	return evm.TxStatus{Hash: hashHex, Status: "confirmed"}, nil
}

type fakeKeys struct {
	names   []interfaces.KeyObjectName
	listErr error
	loadErr error
	address ethcommon.Address
	loaded  bool
	signer  *ecdsa.PrivateKey
}

func (f *fakeKeys) List(ctx context.Context) ([]interfaces.KeyObjectName, error) {
	return f.names, f.listErr
}

func (f *fakeKeys) Load(ctx context.Context, name interfaces.KeyObjectName) (ethcommon.Address, error) {
	if f.loadErr != nil {
		return ethcommon.Address{}, f.loadErr
	}
	f.loaded = true
	return f.address, nil
}

func (f *fakeKeys) Address() (ethcommon.Address, error) {
	if !f.loaded {
		return ethcommon.Address{}, interfaces.ErrNoKeyLoaded
	}
	return f.address, nil
}

func (f *fakeKeys) Signer() (*ecdsa.PrivateKey, error) {
	if f.signer == nil {
		return nil, interfaces.ErrNoKeyLoaded
	}
	return f.signer, nil
}

func newTestHandler(relay ChatRelay, evmClient EVMClient, keys KeyManager) *Handler {
	return NewHandler(relay, evmClient, keys,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleChat(t *testing.T) {
	relay := &fakeRelay{reply: "well hello"}
	h := newTestHandler(relay, &fakeEVM{}, &fakeKeys{})

	body := bytes.NewReader([]byte(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/chat", body))

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON(t, rec)
	assert.Equal(t, "well hello", out["response"])
	assert.Equal(t, float64(2), out["turns"])
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	relay := &fakeRelay{err: interfaces.ErrEmptyMessage}
	h := newTestHandler(relay, &fakeEVM{}, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/chat",
		bytes.NewReader([]byte(`{"message":""}`))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON(t, rec), "error")
}

func TestHandleChat_UpstreamFailure(t *testing.T) {
	relay := &fakeRelay{err: interfaces.ErrUpstream}
	h := newTestHandler(relay, &fakeEVM{}, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/chat",
		bytes.NewReader([]byte(`{"message":"hi"}`))))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleChat_MalformedBody(t *testing.T) {
	h := newTestHandler(&fakeRelay{}, &fakeEVM{}, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/chat",
		bytes.NewReader([]byte(`{not json`))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleResetChat(t *testing.T) {
	relay := &fakeRelay{}
	h := newTestHandler(relay, &fakeEVM{}, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleResetChat(rec, httptest.NewRequest(http.MethodPost, "/reset_chat", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, relay.resets)
}

func TestHandleConnect(t *testing.T) {
	evmClient := &fakeEVM{status: interfaces.NetworkStatus{
		Connected:   true,
		Name:        "Flare Coston",
		ChainID:     big.NewInt(16),
		LatestBlock: 99,
		GasPrice:    big.NewInt(25),
	}}
	h := newTestHandler(&fakeRelay{}, evmClient, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleConnect(rec, httptest.NewRequest(http.MethodGet, "/api/evm/connect?network=flare-coston", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON(t, rec)
	assert.Equal(t, true, out["connected"])
	assert.Equal(t, "16", out["chain_id"])
	assert.Equal(t, "Flare Coston", out["network"])
}

func TestHandleConnect_UnknownNetwork(t *testing.T) {
	evmClient := &fakeEVM{connectErr: interfaces.ErrUnknownNetwork}
	h := newTestHandler(&fakeRelay{}, evmClient, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleConnect(rec, httptest.NewRequest(http.MethodGet, "/api/evm/connect?network=mars", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatus_Disconnected(t *testing.T) {
	h := newTestHandler(&fakeRelay{}, &fakeEVM{}, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/evm/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeJSON(t, rec)["connected"])
}

func TestHandleBalance(t *testing.T) {
	evmClient := &fakeEVM{balance: evm.Balance{
		Address: "0x1111111111111111111111111111111111111111",
		Wei:     "1500000000000000000",
		Ether:   "1.500000",
		Network: "Flare",
	}}
	h := newTestHandler(&fakeRelay{}, evmClient, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleBalance(rec, httptest.NewRequest(http.MethodGet,
		"/api/evm/balance?address=0x1111111111111111111111111111111111111111", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.500000", decodeJSON(t, rec)["balance"])
}

func TestHandleBalance_InvalidAddress(t *testing.T) {
	evmClient := &fakeEVM{balanceErr: interfaces.ErrInvalidAddress}
	h := newTestHandler(&fakeRelay{}, evmClient, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleBalance(rec, httptest.NewRequest(http.MethodGet, "/api/evm/balance?address=zzz", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleKeyList(t *testing.T) {
	keys := &fakeKeys{names: []interfaces.KeyObjectName{"signing-key.enc"}}
	h := newTestHandler(&fakeRelay{}, &fakeEVM{}, keys)

	rec := httptest.NewRecorder()
	h.HandleKeyList(rec, httptest.NewRequest(http.MethodGet, "/api/key/list", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON(t, rec)
	assert.Equal(t, []any{"signing-key.enc"}, out["keys"])
}

func TestHandleKeyList_Empty(t *testing.T) {
	h := newTestHandler(&fakeRelay{}, &fakeEVM{}, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleKeyList(rec, httptest.NewRequest(http.MethodGet, "/api/key/list", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON(t, rec)
	assert.Equal(t, []any{}, out["keys"])
}

func TestHandleKeyLoad(t *testing.T) {
	keys := &fakeKeys{address: ethcommon.HexToAddress("0x2222222222222222222222222222222222222222")}
	h := newTestHandler(&fakeRelay{}, &fakeEVM{}, keys)

	rec := httptest.NewRecorder()
	h.HandleKeyLoad(rec, httptest.NewRequest(http.MethodPost, "/api/key/load",
		bytes.NewReader([]byte(`{"name":"signing-key.enc"}`))))

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON(t, rec)
	assert.Equal(t, "loaded", out["status"])
	assert.Equal(t, keys.address.Hex(), out["address"])
}

func TestHandleKeyLoad_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"object missing", interfaces.ErrObjectNotFound, http.StatusNotFound},
		{"decryption rejected", interfaces.ErrDecryptionFailed, http.StatusForbidden},
		{"backend down", interfaces.ErrBackendUnavailable, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := &fakeKeys{loadErr: tt.err}
			h := newTestHandler(&fakeRelay{}, &fakeEVM{}, keys)

			rec := httptest.NewRecorder()
			h.HandleKeyLoad(rec, httptest.NewRequest(http.MethodGet, "/api/key/load?name=x.enc", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, decodeJSON(t, rec), "error")
		})
	}
}

func TestHandleKeyAddress_NoKeyLoaded(t *testing.T) {
	h := newTestHandler(&fakeRelay{}, &fakeEVM{}, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleKeyAddress(rec, httptest.NewRequest(http.MethodGet, "/api/key/address", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSendTransaction_NoKey(t *testing.T) {
	h := newTestHandler(&fakeRelay{}, &fakeEVM{}, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleSendTransaction(rec, httptest.NewRequest(http.MethodPost, "/api/evm/send",
		bytes.NewReader([]byte(`{"to":"0x2222222222222222222222222222222222222222","value_wei":"1000"}`))))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSendTransaction_BadAmount(t *testing.T) {
	h := newTestHandler(&fakeRelay{}, &fakeEVM{}, &fakeKeys{})

	rec := httptest.NewRecorder()
	h.HandleSendTransaction(rec, httptest.NewRequest(http.MethodPost, "/api/evm/send",
		bytes.NewReader([]byte(`{"to":"0x22","value_wei":"one hundred"}`))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForError_Default(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusForError(errors.New("boom")))
}
