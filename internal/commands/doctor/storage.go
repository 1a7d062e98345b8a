package doctor

import (
	"context"
	"fmt"

	"github.com/hay-kot/deepguard/internal/core/history"
)

// StorageCheck verifies the history backend can be read.
type StorageCheck struct {
	store  history.Store
	driver string
	caps   [2]int
}

// NewStorageCheck creates a new storage check. popupCap and contextMenuCap are reported
// against the stored entry count.
func NewStorageCheck(store history.Store, driver string, popupCap, contextMenuCap int) *StorageCheck {
	return &StorageCheck{store: store, driver: driver, caps: [2]int{popupCap, contextMenuCap}}
}

func (c *StorageCheck) Name() string {
	return "Storage"
}

func (c *StorageCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	entries, err := c.store.Load(ctx, 0)
	if err != nil {
		result.add("History readable", StatusFail, fmt.Sprintf("%s: %v", c.driver, err))
		return result
	}
	result.add("History readable", StatusPass, fmt.Sprintf("%s, %d entries", c.driver, len(entries)))

	if limit := max(c.caps[0], c.caps[1]); len(entries) > limit {
		result.add("History size", StatusWarn, fmt.Sprintf("%d entries exceed the largest cap (%d); they are trimmed on the next save", len(entries), limit))
	}

	return result
}
