package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// rpcCodeExecution is the JSON-RPC error code nodes use for reverts.
const rpcCodeExecution = 3

var (
	rejectedMarkers = []string{
		"execution reverted",
		"revert",
		"invalid argument",
		"invalid opcode",
	}
	fatalMarkers = []string{
		"insufficient funds",
		"intrinsic gas too low",
		"exceeds block gas limit",
	}
	transientMarkers = []string{
		"nonce too low",
		"nonce too high",
		"replacement transaction underpriced",
		"already known",
		"timeout",
		"connection refused",
		"connection reset",
		"eof",
		"too many requests",
		"temporarily unavailable",
	}
)

// classify tags err with domain.ErrValidationRejected or domain.ErrTransport.
// Errors that neither retrying nor another cycle can fix, such as an unfunded
// account, are returned untagged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcCodeExecution {
		return fmt.Errorf("%w: %w", domain.ErrValidationRejected, err)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", domain.ErrTransport, err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, fatalMarkers):
		return err
	case containsAny(msg, rejectedMarkers):
		return fmt.Errorf("%w: %w", domain.ErrValidationRejected, err)
	case containsAny(msg, transientMarkers):
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}

	// Anything else (dial errors, deadlines, proxy failures) is treated as
	// the node being unreachable.
	return fmt.Errorf("%w: %w", domain.ErrTransport, err)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
