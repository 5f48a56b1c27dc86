package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"creditchain/core/events"
	"creditchain/core/state"
	"creditchain/crypto"
	"creditchain/native/pricing"
	"creditchain/native/registry"
	"creditchain/native/score"
	"creditchain/native/token"
	"creditchain/native/vault"
	"creditchain/storage"
)

const testBearer = "test-token"

var rpcVaultAddr = [20]byte{0xaa}

type rpcEnv struct {
	server   *Server
	tokens   *token.Ledger
	borrower crypto.Address
}

func newRPCEnv(t *testing.T) *rpcEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	tokens := token.NewLedger(manager)

	reg := registry.NewEngine(manager)
	reg.SetTokenLedger(tokens, "CRED", rpcVaultAddr)
	reg.SetAuthorizedLender(rpcVaultAddr, true)

	weights := score.DefaultWeights()
	require.NoError(t, weights.Validate())
	tiers := score.DefaultTierTable()
	require.NoError(t, tiers.Normalise())
	oracle := score.NewOracle(reg, weights, tiers)

	feed := pricing.NewManualFeed(24 * time.Hour)
	require.NoError(t, feed.SetDecimal("WETH", "1", time.Now().UTC()))

	vaultEngine := vault.NewEngine()
	vaultEngine.SetState(manager)
	vaultEngine.SetCollaborators(reg, oracle, feed, tokens)
	vaultEngine.SetModuleAddress(rpcVaultAddr)
	vaultEngine.SetLiquidityToken("CUSD")
	vaultEngine.SetAllowedCollateral("WETH", true)

	emitter := events.NewMemoryEmitter(256)
	reg.SetEmitter(emitter)
	vaultEngine.SetEmitter(emitter)

	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	borrower := key.PubKey().Address()

	require.NoError(t, tokens.Mint("CUSD", rpcVaultAddr, big.NewInt(1_000_000)))
	require.NoError(t, tokens.Mint("WETH", borrower.Raw(), big.NewInt(10_000)))

	server := NewServer(Options{
		Registry:    reg,
		Scores:      oracle,
		Vault:       vaultEngine,
		Tokens:      tokens,
		Feed:        feed,
		Emitter:     emitter,
		BearerToken: testBearer,
	})
	return &rpcEnv{server: server, tokens: tokens, borrower: borrower}
}

func (env *rpcEnv) call(t *testing.T, method string, params interface{}, authed bool) (*RPCResponse, int) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+testBearer)
	}
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)

	resp := &RPCResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	return resp, rec.Code
}

func resultMap(t *testing.T, resp *RPCResponse) map[string]interface{} {
	t.Helper()
	require.Nil(t, resp.Error)
	out, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result is %T", resp.Result)
	return out
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	env := newRPCEnv(t)

	resp, status := env.call(t, "vault_borrow", map[string]interface{}{}, false)
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	env := newRPCEnv(t)

	resp, status := env.call(t, "credit_doesNotExist", nil, false)
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestScoreComputeRoundTrip(t *testing.T) {
	env := newRPCEnv(t)

	resp, status := env.call(t, "score_compute", map[string]interface{}{
		"subject": env.borrower.String(),
	}, false)
	require.Equal(t, http.StatusOK, status)
	result := resultMap(t, resp)
	require.Equal(t, "bronze", result["tier"])
	require.EqualValues(t, 50, result["repayment"])
}

func TestBorrowRepayOverRPC(t *testing.T) {
	env := newRPCEnv(t)

	resp, status := env.call(t, "vault_borrow", map[string]interface{}{
		"borrower":         env.borrower.String(),
		"collateralToken":  "WETH",
		"collateralAmount": "1000",
		"principalUsd":     "400",
	}, true)
	require.Equal(t, http.StatusOK, status)
	result := resultMap(t, resp)
	require.EqualValues(t, 1, result["loanId"])

	resp, status = env.call(t, "vault_getDebt", map[string]interface{}{"loanId": 1}, false)
	require.Equal(t, http.StatusOK, status)
	result = resultMap(t, resp)
	require.Equal(t, "400", result["debtUsd"])

	resp, status = env.call(t, "vault_repay", map[string]interface{}{
		"borrower":  env.borrower.String(),
		"loanId":    1,
		"amountUsd": "400",
	}, true)
	require.Equal(t, http.StatusOK, status)
	resultMap(t, resp)

	resp, status = env.call(t, "registry_getLoan", map[string]interface{}{"loanId": 1}, false)
	require.Equal(t, http.StatusOK, status)
	result = resultMap(t, resp)
	require.Equal(t, "repaid", result["status"])
}

func TestBorrowRejectsExcessiveLTV(t *testing.T) {
	env := newRPCEnv(t)

	// bronze tier caps LTV at 50%
	resp, status := env.call(t, "vault_borrow", map[string]interface{}{
		"borrower":         env.borrower.String(),
		"collateralToken":  "WETH",
		"collateralAmount": "1000",
		"principalUsd":     "501",
	}, true)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotNil(t, resp.Error)
}

func TestPriceEndpoints(t *testing.T) {
	env := newRPCEnv(t)

	resp, status := env.call(t, "price_set", map[string]interface{}{
		"token": "WBTC",
		"price": "65000",
	}, true)
	require.Equal(t, http.StatusOK, status)
	resultMap(t, resp)

	resp, status = env.call(t, "price_get", map[string]interface{}{"token": "WBTC"}, false)
	require.Equal(t, http.StatusOK, status)
	result := resultMap(t, resp)
	require.Equal(t, "65000000000000000000000", result["priceUsd"])
}

func TestGetEventsReturnsRecentActivity(t *testing.T) {
	env := newRPCEnv(t)

	_, status := env.call(t, "vault_borrow", map[string]interface{}{
		"borrower":         env.borrower.String(),
		"collateralToken":  "WETH",
		"collateralAmount": "1000",
		"principalUsd":     "400",
	}, true)
	require.Equal(t, http.StatusOK, status)

	resp, status := env.call(t, "credit_getEvents", map[string]interface{}{"limit": 10}, false)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	list, ok := resp.Result.([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, list)
}

func TestInvalidJSONPayload(t *testing.T) {
	env := newRPCEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := &RPCResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)
}

func TestJWTAuthAccepted(t *testing.T) {
	env := newRPCEnv(t)
	env.server.bearerToken = ""
	env.server.jwtSecret = []byte("secret")

	tokenString := signTestJWT(t, "secret")
	payload := `{"jsonrpc":"2.0","id":1,"method":"price_set","params":[{"token":"WBTC","price":"1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(payload)))
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitRejectsBursts(t *testing.T) {
	env := newRPCEnv(t)
	env.server.limiter = newRateLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 2})

	params := map[string]interface{}{"token": "WETH"}
	for i := 0; i < 2; i++ {
		_, status := env.call(t, "price_get", params, false)
		require.Equal(t, http.StatusOK, status)
	}
	resp, status := env.call(t, "price_get", params, false)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.NotNil(t, resp.Error)
}

func signTestJWT(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "keeper",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
