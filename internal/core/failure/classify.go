// Package failure decides whether an error from a remote call means
// "the remote side could not be reached" or "the remote side said no".
//
// The distinction drives the sale pipeline: network failures queue the sale
// for later replay, logic failures revert the reservation and surface the error.
package failure

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"possync/internal/core/apperror"
)

// Class is the outcome of classifying a failure.
type Class int

const (
	// Logic means the remote side received and rejected the request.
	Logic Class = iota
	// Network means the request may not have reached the remote side at all.
	Network
)

func (c Class) String() string {
	if c == Network {
		return "network"
	}
	return "logic"
}

// Classifier is the signature callers depend on, so the heuristic can be swapped.
type Classifier func(err error) Class

// networkMarkers are lower-cased fragments seen in transport error messages
// that do not expose a typed error (HTTP gateways, proxies, driver wrappers).
var networkMarkers = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"failed to fetch",
	"offline",
	"dial tcp",
}

// Classify is the default Classifier.
func Classify(err error) Class {
	if err == nil {
		return Logic
	}

	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Code == apperror.CodeNetworkFailure {
			return Network
		}
		if appErr.Err == nil {
			return Logic
		}
		// AppErrors produced locally carry their verdict in the code.
		if appErr.Code != apperror.CodeInternal {
			return Logic
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Network
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Network
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return Network
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Network
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return Network
	}
	if pgconn.Timeout(err) {
		return Network
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08xxx connection exception, 57P01..57P03 server shutting down / unavailable.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0") {
			return Network
		}
		return Logic
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return Network
		}
	}
	return Logic
}

// IsNetwork is a shorthand for Classify(err) == Network.
func IsNetwork(err error) bool {
	return Classify(err) == Network
}
