package accel

import (
	"strings"
	"sync"

	"github.com/jaypipes/pcidb"
)

// pciID identifies a board by its PCI device and optional subsystem IDs,
// normalised to four lowercase hex digits.
type pciID struct {
	vendor    string
	device    string
	subVendor string
	subDevice string
}

var loadPCIDB = sync.OnceValue(func() *pcidb.PCIDB {
	db, err := pcidb.New()
	if err != nil {
		return nil
	}
	return db
})

// pciIDFromUevent reads PCI_ID and PCI_SUBSYS_ID ("vvvv:dddd") from a parsed
// uevent file.
func pciIDFromUevent(uevent map[string]string) pciID {
	var id pciID
	id.vendor, id.device = splitHexPair(uevent["PCI_ID"])
	id.subVendor, id.subDevice = splitHexPair(uevent["PCI_SUBSYS_ID"])
	return id
}

func (id pciID) valid() bool {
	return id.vendor != "" && id.device != ""
}

// lookupPCIName resolves a marketing name from the system PCI ID database.
func lookupPCIName(id pciID) string {
	if !id.valid() {
		return ""
	}
	return resolvePCIName(loadPCIDB(), id)
}

// resolvePCIName prefers the subsystem entry when the board vendor is known.
func resolvePCIName(db *pcidb.PCIDB, id pciID) string {
	if db == nil || !id.valid() {
		return ""
	}
	product := db.Products[id.vendor+id.device]
	if product == nil {
		return ""
	}

	if id.subVendor != "" && id.subDevice != "" {
		for _, sub := range product.Subsystems {
			if sub != nil && sub.Name != "" && strings.EqualFold(sub.VendorID, id.subVendor) && strings.EqualFold(sub.ID, id.subDevice) {
				return sub.Name
			}
		}
	}
	return product.Name
}

func splitHexPair(raw string) (string, string) {
	left, right, ok := strings.Cut(raw, ":")
	if !ok {
		return "", ""
	}
	left, right = hexID(left), hexID(right)
	if left == "" || right == "" {
		return "", ""
	}
	return left, right
}

// hexID accepts "0x1002", "1002" or "2" and returns "1002"-style IDs.
func hexID(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimPrefix(value, "0x")
	if value == "" {
		return ""
	}
	if n := len(value); n < 4 {
		value = strings.Repeat("0", 4-n) + value
	}
	return value
}
