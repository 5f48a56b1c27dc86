package rpc

import (
	"net/http"
	"time"
)

type balanceParams struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

func (s *Server) handleTokenGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid balance parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.tokens.BalanceOf(params.Symbol, addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"symbol":  params.Symbol,
		"address": params.Address,
		"balance": balance.String(),
	})
}

type priceSetParams struct {
	Token string `json:"token"`
	Price string `json:"price"`
}

func (s *Server) handlePriceSet(w http.ResponseWriter, req *RPCRequest) {
	var params priceSetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price parameters", err.Error())
		return
	}
	if err := s.feed.SetDecimal(params.Token, params.Price, time.Now().UTC()); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"token": params.Token,
		"price": params.Price,
	})
}

type priceGetParams struct {
	Token string `json:"token"`
}

func (s *Server) handlePriceGet(w http.ResponseWriter, req *RPCRequest) {
	var params priceGetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price parameters", err.Error())
		return
	}
	quote, err := s.feed.GetPrice(params.Token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"token":     params.Token,
		"priceUsd":  quote.PriceUSD.String(),
		"timestamp": quote.Timestamp.Unix(),
		"source":    quote.Source,
	})
}

type eventsParams struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Server) handleGetEvents(w http.ResponseWriter, req *RPCRequest) {
	var params eventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid event parameters", err.Error())
			return
		}
	}
	all := s.emitter.Events()
	if params.Limit > 0 && len(all) > params.Limit {
		all = all[len(all)-params.Limit:]
	}
	writeResult(w, req.ID, all)
}
