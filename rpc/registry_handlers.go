package rpc

import (
	"encoding/hex"
	"net/http"
)

type stakeParams struct {
	Subject     string `json:"subject"`
	Amount      string `json:"amount"`
	LockSeconds uint64 `json:"lockSeconds,omitempty"`
}

func (s *Server) handleRegistryStake(w http.ResponseWriter, req *RPCRequest) {
	var params stakeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid stake parameters", err.Error())
		return
	}
	subject, err := parseAddress(params.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid subject address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.registry.Stake(subject, amount, params.LockSeconds); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	info, err := s.registry.StakeOf(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"subject":   params.Subject,
		"staked":    info.Amount.String(),
		"lockUntil": info.LockUntil,
	})
}

type unstakeParams struct {
	Subject string `json:"subject"`
	Amount  string `json:"amount"`
}

func (s *Server) handleRegistryUnstake(w http.ResponseWriter, req *RPCRequest) {
	var params unstakeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid unstake parameters", err.Error())
		return
	}
	subject, err := parseAddress(params.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid subject address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.registry.Unstake(subject, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	info, err := s.registry.StakeOf(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"subject": params.Subject,
		"staked":  info.Amount.String(),
	})
}

type submitKYCParams struct {
	Subject        string `json:"subject"`
	CredentialHash string `json:"credentialHash"`
	ExpiresAt      uint64 `json:"expiresAt"`
	Signature      string `json:"signature"`
}

func (s *Server) handleRegistrySubmitKYC(w http.ResponseWriter, req *RPCRequest) {
	var params submitKYCParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid kyc parameters", err.Error())
		return
	}
	subject, err := parseAddress(params.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid subject address", err.Error())
		return
	}
	credentialHash, err := parseHash32(params.CredentialHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid credential hash", err.Error())
		return
	}
	sig, err := hex.DecodeString(trimHexPrefix(params.Signature))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signature encoding", err.Error())
		return
	}
	if err := s.registry.SubmitKYC(subject, credentialHash, params.ExpiresAt, sig); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"subject":   params.Subject,
		"verified":  true,
		"expiresAt": params.ExpiresAt,
	})
}

type governanceParams struct {
	Caller  string `json:"caller"`
	Subject string `json:"subject"`
}

func (s *Server) handleRegistryRecordVote(w http.ResponseWriter, req *RPCRequest) {
	s.handleGovernanceRecord(w, req, true)
}

func (s *Server) handleRegistryRecordProposal(w http.ResponseWriter, req *RPCRequest) {
	s.handleGovernanceRecord(w, req, false)
}

func (s *Server) handleGovernanceRecord(w http.ResponseWriter, req *RPCRequest, vote bool) {
	var params governanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid governance parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	subject, err := parseAddress(params.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid subject address", err.Error())
		return
	}
	if vote {
		err = s.registry.RecordVote(caller, subject)
	} else {
		err = s.registry.RecordProposal(caller, subject)
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	activity, err := s.registry.GovernanceOf(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"subject":   params.Subject,
		"votes":     activity.Votes,
		"proposals": activity.Proposals,
	})
}

type importScoreParams struct {
	Caller        string `json:"caller"`
	Subject       string `json:"subject"`
	ChainSelector uint64 `json:"chainSelector"`
	Score         uint64 `json:"score"`
	LoanCount     uint64 `json:"loanCount"`
	RepaidCount   uint64 `json:"repaidCount"`
}

func (s *Server) handleRegistryImportScore(w http.ResponseWriter, req *RPCRequest) {
	var params importScoreParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid import parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	subject, err := parseAddress(params.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid subject address", err.Error())
		return
	}
	if err := s.registry.ImportCrossChainScore(caller, subject, params.ChainSelector, params.Score, params.LoanCount, params.RepaidCount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"subject":       params.Subject,
		"chainSelector": params.ChainSelector,
		"score":         params.Score,
	})
}

type registerIdentityParams struct {
	Primary      string `json:"primary"`
	IdentityHash string `json:"identityHash"`
}

func (s *Server) handleRegistryRegisterIdentity(w http.ResponseWriter, req *RPCRequest) {
	var params registerIdentityParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid identity parameters", err.Error())
		return
	}
	primary, err := parseAddress(params.Primary)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid primary address", err.Error())
		return
	}
	identityHash, err := parseHash32(params.IdentityHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid identity hash", err.Error())
		return
	}
	if err := s.registry.RegisterIdentity(primary, identityHash); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"primary":      params.Primary,
		"identityHash": params.IdentityHash,
	})
}

type linkWalletParams struct {
	Primary string `json:"primary"`
	Wallet  string `json:"wallet"`
}

func (s *Server) handleRegistryLinkWallet(w http.ResponseWriter, req *RPCRequest) {
	var params linkWalletParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid link parameters", err.Error())
		return
	}
	primary, err := parseAddress(params.Primary)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid primary address", err.Error())
		return
	}
	wallet, err := parseAddress(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid wallet address", err.Error())
		return
	}
	if err := s.registry.LinkWallet(primary, wallet); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"primary": params.Primary,
		"wallet":  params.Wallet,
		"linked":  true,
	})
}

type loanQueryParams struct {
	LoanID uint64 `json:"loanId"`
}

type loanResult struct {
	LoanID       uint64 `json:"loanId"`
	Borrower     string `json:"borrower"`
	Lender       string `json:"lender"`
	PrincipalUSD string `json:"principalUsd"`
	RepaidUSD    string `json:"repaidUsd"`
	OpenedAt     uint64 `json:"openedAt"`
	Status       string `json:"status"`
}

func (s *Server) handleRegistryGetLoan(w http.ResponseWriter, req *RPCRequest) {
	var params loanQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid loan parameters", err.Error())
		return
	}
	loan, ok, err := s.registry.Loan(params.LoanID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "loan not found", params.LoanID)
		return
	}
	writeResult(w, req.ID, loanResult{
		LoanID:       loan.ID,
		Borrower:     formatAddress(loan.Borrower),
		Lender:       formatAddress(loan.Lender),
		PrincipalUSD: loan.PrincipalUSD.String(),
		RepaidUSD:    loan.RepaidUSD.String(),
		OpenedAt:     loan.OpenedAt,
		Status:       loan.Status.String(),
	})
}

type profileParams struct {
	Subject string `json:"subject"`
}

type profileResult struct {
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

func (s *Server) handleRegistryGetProfile(w http.ResponseWriter, req *RPCRequest) {
	var params profileParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid profile parameters", err.Error())
		return
	}
	subject, err := parseAddress(params.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid subject address", err.Error())
		return
	}
	ids, err := s.registry.LoanIDs(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	assets, err := s.registry.Assets(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	stake, err := s.registry.StakeOf(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	proof, hasKYC, err := s.registry.KYCOf(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	activity, err := s.registry.GovernanceOf(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	firstSeen, err := s.registry.FirstSeen(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	chains, err := s.registry.CrossChainOf(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	result := profileResult{
		Subject:    params.Subject,
		LoanIDs:    ids,
		Assets:     assets,
		Staked:     stake.Amount.String(),
		LockUntil:  stake.LockUntil,
		Votes:      activity.Votes,
		Proposals:  activity.Proposals,
		FirstSeen:  firstSeen,
		ChainCount: len(chains),
	}
	if hasKYC {
		result.KYCActive = proof.ActiveAt(unixNow())
	}
	writeResult(w, req.ID, result)
}
