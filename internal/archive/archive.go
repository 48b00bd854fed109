package archive

import (
	"fmt"
	"path"
	"time"
)

// Key is the object key a raw delivery is stored under, partitioned by
// provider and receive date.
func Key(provider, deliveryID string, at time.Time) string {
	at = at.UTC()
	return path.Join("webhooks", provider, at.Format("2006/01/02"), fmt.Sprintf("%s.json", deliveryID))
}
