package sync

import (
	"github.com/schaermu/ghsync/internal/catalog"
	"github.com/schaermu/ghsync/internal/inventory"
)

// PlanFetch returns the remote names whose local copy is missing or differs,
// in catalog order.
func PlanFetch(remote *catalog.ShaMap, local inventory.ShaMap) []string {
	fetch := make([]string, 0, remote.Len())
	for _, name := range remote.Names() {
		remoteSHA, _ := remote.Get(name)
		localSHA, ok := local[name]
		if !ok || localSHA != remoteSHA {
			fetch = append(fetch, name)
		}
	}
	return fetch
}
