// Package credit provides a typed Go client for the creditchain JSON-RPC API.
package credit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

// Client wraps the JSON-RPC endpoint exposed by creditd.
type Client struct {
	endpoint   string
	bearer     string
	httpClient *http.Client
	nextID     atomic.Int64
}

// Option mutates the client configuration during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBearerToken attaches the credential required by mutating methods.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.bearer = strings.TrimSpace(token)
	}
}

// New constructs a client pointed at the supplied endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("endpoint required")
	}
	client := &Client{
		endpoint:   trimmed,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = http.DefaultClient
	}
	return client, nil
}

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return "rpc: unknown error"
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call issues a single JSON-RPC request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	if c == nil {
		return fmt.Errorf("client not initialised")
	}
	envelope := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
	}
	if params != nil {
		envelope.Params = []interface{}{params}
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	decoded := &rpcResponse{}
	if err := json.Unmarshal(payload, decoded); err != nil {
		return fmt.Errorf("rpc: malformed response (status %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(decoded.Result, out)
}

// LoanSummary mirrors registry_getLoan.
type LoanSummary struct {
	LoanID       uint64 `json:"loanId"`
	Borrower     string `json:"borrower"`
	Lender       string `json:"lender"`
	PrincipalUSD string `json:"principalUsd"`
	RepaidUSD    string `json:"repaidUsd"`
	OpenedAt     uint64 `json:"openedAt"`
	Status       string `json:"status"`
}

// Profile mirrors registry_getProfile.
type Profile struct {
	Subject    string   `json:"subject"`
	LoanIDs    []uint64 `json:"loanIds"`
	Assets     []string `json:"assets"`
	Staked     string   `json:"staked"`
	LockUntil  uint64   `json:"lockUntil"`
	KYCActive  bool     `json:"kycActive"`
	Votes      uint64   `json:"votes"`
	Proposals  uint64   `json:"proposals"`
	FirstSeen  uint64   `json:"firstSeen"`
	ChainCount int      `json:"chainCount"`
}

// ScoreBreakdown mirrors score_compute.
type ScoreBreakdown struct {
	Subject    string `json:"subject"`
	Repayment  int    `json:"repayment"`
	Collateral int    `json:"collateral"`
	SybilRaw   int64  `json:"sybilRaw"`
	Sybil      int    `json:"sybil"`
	CrossChain int    `json:"crossChain"`
	Governance int    `json:"governance"`
	Overall    int    `json:"overall"`
	Tier       string `json:"tier"`
	MaxLTV     uint64 `json:"maxLtvPercent"`
	GraceHours uint64 `json:"graceHours"`
	APRBps     uint64 `json:"aprBps"`
}

// BorrowReceipt mirrors vault_borrow.
type BorrowReceipt struct {
	LoanID        uint64 `json:"loanId"`
	Borrower      string `json:"borrower"`
	PrincipalUSD  string `json:"principalUsd"`
	APRBps        uint64 `json:"aprBps"`
	MaxLTVPercent uint64 `json:"maxLtvPercent"`
	GraceSeconds  uint64 `json:"graceSeconds"`
}

// VaultLoan mirrors vault_getLoan.
type VaultLoan struct {
	LoanID           uint64 `json:"loanId"`
	Borrower         string `json:"borrower"`
	CollateralToken  string `json:"collateralToken"`
	CollateralAmount string `json:"collateralAmount"`
	PrincipalUSD     string `json:"principalUsd"`
	RepaidUSD        string `json:"repaidUsd"`
	APRBps           uint64 `json:"aprBps"`
	MaxLTVPercent    uint64 `json:"maxLtvPercent"`
	GraceSeconds     uint64 `json:"graceSeconds"`
	StartedAt        uint64 `json:"startedAt"`
	GraceStartedAt   uint64 `json:"graceStartedAt"`
}

// PriceQuote mirrors price_get.
type PriceQuote struct {
	Token     string `json:"token"`
	PriceUSD  string `json:"priceUsd"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// Event mirrors the entries returned by credit_getEvents.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Stake deposits stake for the subject, extending the lock when requested.
func (c *Client) Stake(ctx context.Context, subject, amount string, lockSeconds uint64) error {
	return c.call(ctx, "registry_stake", map[string]interface{}{
		"subject":     subject,
		"amount":      amount,
		"lockSeconds": lockSeconds,
	}, nil)
}

// Unstake withdraws unlocked stake.
func (c *Client) Unstake(ctx context.Context, subject, amount string) error {
	return c.call(ctx, "registry_unstake", map[string]interface{}{
		"subject": subject,
		"amount":  amount,
	}, nil)
}

// SubmitKYC records an issuer-signed KYC attestation for the subject.
func (c *Client) SubmitKYC(ctx context.Context, subject, credentialHash string, expiresAt uint64, signature string) error {
	return c.call(ctx, "registry_submitKYC", map[string]interface{}{
		"subject":        subject,
		"credentialHash": credentialHash,
		"expiresAt":      expiresAt,
		"signature":      signature,
	}, nil)
}

// RecordVote attributes one governance vote to the subject.
func (c *Client) RecordVote(ctx context.Context, caller, subject string) error {
	return c.call(ctx, "registry_recordVote", map[string]interface{}{
		"caller":  caller,
		"subject": subject,
	}, nil)
}

// RecordProposal attributes one governance proposal to the subject.
func (c *Client) RecordProposal(ctx context.Context, caller, subject string) error {
	return c.call(ctx, "registry_recordProposal", map[string]interface{}{
		"caller":  caller,
		"subject": subject,
	}, nil)
}

// ImportScore relays a cross-chain credit attestation.
func (c *Client) ImportScore(ctx context.Context, caller, subject string, chainSelector, score, loanCount, repaidCount uint64) error {
	return c.call(ctx, "registry_importScore", map[string]interface{}{
		"caller":        caller,
		"subject":       subject,
		"chainSelector": chainSelector,
		"score":         score,
		"loanCount":     loanCount,
		"repaidCount":   repaidCount,
	}, nil)
}

// RegisterIdentity claims an identity hash for the primary wallet.
func (c *Client) RegisterIdentity(ctx context.Context, primary, identityHash string) error {
	return c.call(ctx, "registry_registerIdentity", map[string]interface{}{
		"primary":      primary,
		"identityHash": identityHash,
	}, nil)
}

// LinkWallet attaches an additional wallet to the primary identity.
func (c *Client) LinkWallet(ctx context.Context, primary, wallet string) error {
	return c.call(ctx, "registry_linkWallet", map[string]interface{}{
		"primary": primary,
		"wallet":  wallet,
	}, nil)
}

// Loan fetches the registry view of a loan.
func (c *Client) Loan(ctx context.Context, loanID uint64) (*LoanSummary, error) {
	out := &LoanSummary{}
	if err := c.call(ctx, "registry_getLoan", map[string]interface{}{"loanId": loanID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Profile fetches the aggregated registry profile for a subject.
func (c *Client) Profile(ctx context.Context, subject string) (*Profile, error) {
	out := &Profile{}
	if err := c.call(ctx, "registry_getProfile", map[string]interface{}{"subject": subject}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Score computes the subject's current credit score breakdown.
func (c *Client) Score(ctx context.Context, subject string) (*ScoreBreakdown, error) {
	out := &ScoreBreakdown{}
	if err := c.call(ctx, "score_compute", map[string]interface{}{"subject": subject}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Borrow opens a loan against the supplied collateral.
func (c *Client) Borrow(ctx context.Context, borrower, collateralToken, collateralAmount, principalUSD string) (*BorrowReceipt, error) {
	out := &BorrowReceipt{}
	err := c.call(ctx, "vault_borrow", map[string]interface{}{
		"borrower":         borrower,
		"collateralToken":  collateralToken,
		"collateralAmount": collateralAmount,
		"principalUsd":     principalUSD,
	}, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Repay pays down a loan. Paying the full debt releases the collateral.
func (c *Client) Repay(ctx context.Context, borrower string, loanID uint64, amountUSD string) error {
	return c.call(ctx, "vault_repay", map[string]interface{}{
		"borrower":  borrower,
		"loanId":    loanID,
		"amountUsd": amountUSD,
	}, nil)
}

// Liquidate advances the liquidation state machine and returns the outcome.
func (c *Client) Liquidate(ctx context.Context, liquidator string, loanID uint64) (string, error) {
	out := struct {
		Outcome string `json:"outcome"`
	}{}
	err := c.call(ctx, "vault_liquidate", map[string]interface{}{
		"liquidator": liquidator,
		"loanId":     loanID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Outcome, nil
}

// VaultLoan fetches the vault's view of a loan, including frozen terms.
func (c *Client) VaultLoan(ctx context.Context, loanID uint64) (*VaultLoan, error) {
	out := &VaultLoan{}
	if err := c.call(ctx, "vault_getLoan", map[string]interface{}{"loanId": loanID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Debt returns the current USD debt of a loan, interest included.
func (c *Client) Debt(ctx context.Context, loanID uint64) (string, error) {
	out := struct {
		DebtUSD string `json:"debtUsd"`
	}{}
	if err := c.call(ctx, "vault_getDebt", map[string]interface{}{"loanId": loanID}, &out); err != nil {
		return "", err
	}
	return out.DebtUSD, nil
}

// Balance returns the token balance held by an address.
func (c *Client) Balance(ctx context.Context, symbol, address string) (string, error) {
	out := struct {
		Balance string `json:"balance"`
	}{}
	err := c.call(ctx, "token_getBalance", map[string]interface{}{
		"symbol":  symbol,
		"address": address,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Balance, nil
}

// SetPrice publishes a decimal USD price to the manual feed.
func (c *Client) SetPrice(ctx context.Context, token, price string) error {
	return c.call(ctx, "price_set", map[string]interface{}{
		"token": token,
		"price": price,
	}, nil)
}

// Price fetches the latest quote for a token.
func (c *Client) Price(ctx context.Context, token string) (*PriceQuote, error) {
	out := &PriceQuote{}
	if err := c.call(ctx, "price_get", map[string]interface{}{"token": token}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events returns the most recent emitted events, newest last.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var out []Event
	if err := c.call(ctx, "credit_getEvents", map[string]interface{}{"limit": limit}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
