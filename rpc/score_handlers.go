package rpc

import "net/http"

type scoreComputeParams struct {
	Subject string `json:"subject"`
}

type scoreBreakdownResult struct {
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

func (s *Server) handleScoreCompute(w http.ResponseWriter, req *RPCRequest) {
	var params scoreComputeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid score parameters", err.Error())
		return
	}
	subject, err := parseAddress(params.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid subject address", err.Error())
		return
	}
	breakdown, err := s.scores.ComputeScore(subject)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	tier := s.scores.TierFor(breakdown.Overall)
	if s.credit != nil {
		s.credit.RecordScore("rpc", breakdown.Overall)
	}
	writeResult(w, req.ID, scoreBreakdownResult{
		Subject:    params.Subject,
		Repayment:  breakdown.Repayment,
		Collateral: breakdown.Collateral,
		SybilRaw:   breakdown.SybilRaw,
		Sybil:      breakdown.Sybil,
		CrossChain: breakdown.CrossChain,
		Governance: breakdown.Governance,
		Overall:    breakdown.Overall,
		Tier:       tier.Name,
		MaxLTV:     tier.MaxLTVPercent,
		GraceHours: tier.GraceSeconds / 3600,
		APRBps:     tier.APRBps,
	})
}
