package rpc

import (
	"errors"
	"net/http"

	"creditchain/native/vault"
)

type borrowParams struct {
	Borrower         string `json:"borrower"`
	CollateralToken  string `json:"collateralToken"`
	CollateralAmount string `json:"collateralAmount"`
	PrincipalUSD     string `json:"principalUsd"`
}

func (s *Server) handleVaultBorrow(w http.ResponseWriter, req *RPCRequest) {
	var params borrowParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrow parameters", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower address", err.Error())
		return
	}
	collateralAmount, err := parseAmount(params.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid collateral amount", err.Error())
		return
	}
	principal, err := parseAmount(params.PrincipalUSD)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid principal", err.Error())
		return
	}
	tierName := "unknown"
	if breakdown, scoreErr := s.scores.ComputeScore(borrower); scoreErr == nil {
		tierName = s.scores.TierFor(breakdown.Overall).Name
	}
	id, err := s.vault.Borrow(borrower, params.CollateralToken, collateralAmount, principal)
	if err != nil {
		if errors.Is(err, vault.ErrLTVExceeded) {
			writeError(w, http.StatusUnprocessableEntity, req.ID, codeServerError, err.Error(), nil)
			return
		}
		writeEngineError(w, req.ID, err)
		return
	}
	data, _, err := s.vault.Loan(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if s.credit != nil {
		s.credit.RecordLoanOpened(tierName)
	}
	result := map[string]interface{}{
		"loanId":       id,
		"borrower":     params.Borrower,
		"principalUsd": principal.String(),
	}
	if data != nil {
		result["aprBps"] = data.APRBps
		result["maxLtvPercent"] = data.MaxLTVPercent
		result["graceSeconds"] = data.GraceSeconds
	}
	writeResult(w, req.ID, result)
}

type repayParams struct {
	Borrower  string `json:"borrower"`
	LoanID    uint64 `json:"loanId"`
	AmountUSD string `json:"amountUsd"`
}

func (s *Server) handleVaultRepay(w http.ResponseWriter, req *RPCRequest) {
	var params repayParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid repay parameters", err.Error())
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower address", err.Error())
		return
	}
	amount, err := parseAmount(params.AmountUSD)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.vault.Repay(borrower, params.LoanID, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"loanId": params.LoanID,
		"repaid": amount.String(),
	})
}

type liquidateParams struct {
	Liquidator string `json:"liquidator"`
	LoanID     uint64 `json:"loanId"`
}

func (s *Server) handleVaultLiquidate(w http.ResponseWriter, req *RPCRequest) {
	var params liquidateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid liquidate parameters", err.Error())
		return
	}
	liquidator, err := parseAddress(params.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid liquidator address", err.Error())
		return
	}
	outcome, err := s.vault.Liquidate(liquidator, params.LoanID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if s.credit != nil {
		s.credit.RecordLiquidationOutcome(outcome.String())
	}
	writeResult(w, req.ID, map[string]interface{}{
		"loanId":  params.LoanID,
		"outcome": outcome.String(),
	})
}

type vaultLoanResult struct {
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

func (s *Server) handleVaultGetLoan(w http.ResponseWriter, req *RPCRequest) {
	var params loanQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid loan parameters", err.Error())
		return
	}
	data, ok, err := s.vault.Loan(params.LoanID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "loan not found", params.LoanID)
		return
	}
	writeResult(w, req.ID, vaultLoanResult{
		LoanID:           data.LoanID,
		Borrower:         formatAddress(data.Borrower),
		CollateralToken:  data.CollateralToken,
		CollateralAmount: data.CollateralAmount.String(),
		PrincipalUSD:     data.PrincipalUSD.String(),
		RepaidUSD:        data.RepaidUSD.String(),
		APRBps:           data.APRBps,
		MaxLTVPercent:    data.MaxLTVPercent,
		GraceSeconds:     data.GraceSeconds,
		StartedAt:        data.StartedAt,
		GraceStartedAt:   data.GraceStartedAt,
	})
}

func (s *Server) handleVaultGetDebt(w http.ResponseWriter, req *RPCRequest) {
	var params loanQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid loan parameters", err.Error())
		return
	}
	debt, err := s.vault.Debt(params.LoanID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"loanId":  params.LoanID,
		"debtUsd": debt.String(),
	})
}
