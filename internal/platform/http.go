package platform

import (
	"fmt"
	"net/http"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// CheckStatus maps non-2xx HTTP status codes to domain errors. Every failure
// also wraps domain.ErrTransport: a venue that cannot serve its batch is
// retried by the publisher regardless of the cause.
func CheckStatus(venue string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	snippet := string(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w: %w: HTTP %d: %s", venue, domain.ErrTransport, domain.ErrUnauthorized, statusCode, snippet)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %w: %s", venue, domain.ErrTransport, domain.ErrRateLimited, snippet)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %w: %s", venue, domain.ErrTransport, domain.ErrNotFound, snippet)
	default:
		return fmt.Errorf("%s: %w: HTTP %d: %s", venue, domain.ErrTransport, statusCode, snippet)
	}
}
