package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"creditchain/crypto"
	nativecommon "creditchain/native/common"
	"creditchain/native/registry"
	"creditchain/native/token"
	"creditchain/native/vault"
)

func unixNow() uint64 {
	return uint64(time.Now().UTC().Unix())
}

func trimHexPrefix(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), "0x")
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Raw(), nil
}

func formatAddress(raw [20]byte) string {
	return crypto.NewAddress(crypto.CRDPrefix, raw[:]).String()
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func parseHash32(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// writeEngineError classifies module errors into the JSON-RPC taxonomy:
// authorization failures, invariant violations and everything else.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, registry.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, err.Error(), nil)
	case errors.Is(err, registry.ErrInvalidAmount),
		errors.Is(err, registry.ErrZeroAddress),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrAssetNotAllowed),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrSymbolRequired):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusUnprocessableEntity, id, codeServerError, err.Error(), nil)
	}
}
