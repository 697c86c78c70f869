package sync

import (
	"errors"
	"fmt"
)

// ErrAlreadySyncing is returned when a pass is requested while another pass
// is still running. The caller is expected to drop the trigger, not queue it.
var ErrAlreadySyncing = errors.New("sync already in progress")

// ErrSourceNotFound is wrapped by adapters when a configured Reminders list
// or Notion database no longer resolves. It aborts the affected mapping's
// pass only.
var ErrSourceNotFound = errors.New("sync source not found")

// MissingLinkageError reports that an update or delete action could not
// resolve the counterpart id it needs, neither from the live item nor from
// the sync record. Fatal to that action only.
type MissingLinkageError struct {
	// Side is "apple" or "notion" — the side whose id is missing.
	Side string
	// Title identifies the item for the history error string.
	Title string
}

func (e *MissingLinkageError) Error() string {
	return fmt.Sprintf("no %s id resolvable for %q", e.Side, e.Title)
}
