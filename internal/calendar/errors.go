package calendar

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

// classify maps a Google API failure onto the sync error taxonomy.
func classify(op string, err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return syncerr.NewSyncError(op, err)
	}

	switch gErr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %s", op, syncerr.ErrAuth, gErr.Message)
	case http.StatusForbidden:
		// Quota errors share the status code but are transient.
		if errIsReason(gErr, "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded") {
			return syncerr.NewSyncError(op, err)
		}
		return fmt.Errorf("%s: %w: %s", op, syncerr.ErrPermission, gErr.Message)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%s: %w: %s", op, syncerr.ErrNotFound, gErr.Message)
	}
	return syncerr.NewSyncError(op, err)
}

func errIsReason(gErr *googleapi.Error, reasons ...string) bool {
	for _, item := range gErr.Errors {
		for _, reason := range reasons {
			if item.Reason == reason {
				return true
			}
		}
	}
	return false
}
