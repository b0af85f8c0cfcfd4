package github

import (
	"context"
	"errors"
	"net"
	"net/http"

	gogithub "github.com/google/go-github/v67/github"

	apperrors "github.com/consoleblue/consoleblue/pkg/errors"
)

// classifyError normalizes go-github and transport failures into the origin
// error taxonomy. The original error is always retained for logging.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return apperrors.ErrOriginRateLimited.WithInternal(err)
	}

	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperrors.ErrOriginRateLimited.WithInternal(err)
	}

	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return classifyStatus(ghErr.Response.StatusCode, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ErrOriginUnavailable.WithInternal(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.ErrOriginUnavailable.WithInternal(err)
	}

	return apperrors.ErrOriginUnknown.WithInternal(err)
}

func classifyStatus(status int, err error) error {
	switch {
	case status == http.StatusNotFound:
		return apperrors.ErrOriginNotFound.WithInternal(err)
	case status == http.StatusUnauthorized:
		return apperrors.ErrOriginUnauthorized.WithInternal(err)
	// GitHub reports rate limiting as 403 as well as 429.
	case status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return apperrors.ErrOriginRateLimited.WithInternal(err)
	case status >= http.StatusInternalServerError:
		return apperrors.ErrOriginUnavailable.WithInternal(err)
	default:
		return apperrors.ErrOriginUnknown.WithInternal(err)
	}
}
