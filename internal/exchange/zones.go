package exchange

import (
	"sort"
	"strings"
)

const (
	LocalZone    = "CH"
	SourceName   = "swissgrid.ch"
	keySeparator = "->"
)

// neighborIDs maps a canonical zone key to the marker id swissgrid uses for
// that border.
var neighborIDs = map[string]string{
	"AT->CH":    "at",
	"CH->DE":    "de",
	"CH->FR":    "fr",
	"CH->IT-NO": "it",
}

// exportArrows holds, per neighbour, the arrow direction the widget draws when
// CH exports to it. Calibrated by hand against the live map; revalidate when
// swissgrid changes the widget layout.
var exportArrows = map[string]string{
	"DE":    "up",
	"IT-NO": "down",
	"FR":    "left",
	"AT":    "right",
}

type Neighbor struct {
	Zone        string
	Key         string
	MarkerID    string
	ExportArrow string
}

// Neighbors lists the registered borders ordered by canonical key.
func Neighbors() []Neighbor {
	keys := make([]string, 0, len(neighborIDs))
	for key := range neighborIDs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]Neighbor, 0, len(keys))
	for _, key := range keys {
		zone := otherZone(strings.Split(key, keySeparator))
		out = append(out, Neighbor{
			Zone:        zone,
			Key:         key,
			MarkerID:    neighborIDs[key],
			ExportArrow: exportArrows[zone],
		})
	}
	return out
}

func normalizeZone(zone string) string {
	return strings.ToUpper(strings.TrimSpace(zone))
}

// SortedZoneKeys joins the two zones in ascending lexical order.
func SortedZoneKeys(zoneA, zoneB string) string {
	zones := []string{normalizeZone(zoneA), normalizeZone(zoneB)}
	sort.Strings(zones)
	return strings.Join(zones, keySeparator)
}

func otherZone(zones []string) string {
	for _, zone := range zones {
		if zone != LocalZone {
			return zone
		}
	}
	return ""
}
