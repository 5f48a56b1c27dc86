package credit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func stubServer(t *testing.T, captured *struct {
	method string
	auth   string
	body   string
}, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		captured.method = r.Method
		captured.auth = r.Header.Get("Authorization")
		captured.body = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
}

func TestBorrowSendsAuthorizedRequest(t *testing.T) {
	t.Parallel()

	var captured struct {
		method string
		auth   string
		body   string
	}
	server := stubServer(t, &captured, `{"loanId":7,"borrower":"crd1example","principalUsd":"5000","aprBps":600,"maxLtvPercent":80,"graceSeconds":172800}`)
	defer server.Close()

	client, err := New(server.URL, WithHTTPClient(server.Client()), WithBearerToken("secret"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	receipt, err := client.Borrow(context.Background(), "crd1example", "WETH", "1000", "5000")
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if receipt.LoanID != 7 || receipt.APRBps != 600 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if captured.method != http.MethodPost {
		t.Fatalf("expected POST, got %s", captured.method)
	}
	if captured.auth != "Bearer secret" {
		t.Fatalf("unexpected authorization header %q", captured.auth)
	}

	envelope := struct {
		JSONRPC string                   `json:"jsonrpc"`
		Method  string                   `json:"method"`
		Params  []map[string]interface{} `json:"params"`
	}{}
	if err := json.Unmarshal([]byte(captured.body), &envelope); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if envelope.JSONRPC != "2.0" || envelope.Method != "vault_borrow" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if len(envelope.Params) != 1 || envelope.Params[0]["collateralToken"] != "WETH" {
		t.Fatalf("unexpected params: %+v", envelope.Params)
	}
}

func TestScoreDecodesBreakdown(t *testing.T) {
	t.Parallel()

	var captured struct {
		method string
		auth   string
		body   string
	}
	server := stubServer(t, &captured, `{"subject":"crd1example","repayment":55,"collateral":50,"sybilRaw":-50,"sybil":53,"crossChain":0,"governance":0,"overall":40,"tier":"bronze","maxLtvPercent":50,"graceHours":24,"aprBps":1000}`)
	defer server.Close()

	client, err := New(server.URL, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	breakdown, err := client.Score(context.Background(), "crd1example")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if breakdown.Overall != 40 || breakdown.Tier != "bronze" || breakdown.SybilRaw != -50 {
		t.Fatalf("unexpected breakdown: %+v", breakdown)
	}
	if captured.auth != "" {
		t.Fatalf("read method should not send credentials, got %q", captured.auth)
	}
}

func TestCallSurfacesServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32001,"message":"invalid RPC credentials"}}`))
	}))
	defer server.Close()

	client, err := New(server.URL, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Repay(context.Background(), "crd1example", 1, "100"); err == nil {
		t.Fatal("expected error")
	} else if rpcErr, ok := err.(*RPCError); !ok || rpcErr.Code != -32001 {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRejectsEmptyEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := New("   "); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
