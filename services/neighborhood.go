package services

import "strings"

const UnknownNeighborhood = "Unknown"

// ExtractNeighborhood guesses a locality from a "Street, Neighborhood, City, ..."
// address: the second comma separated component, or the only one.
func ExtractNeighborhood(address string) string {
	var parts []string
	for _, p := range strings.Split(address, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	switch {
	case len(parts) >= 2:
		return parts[1]
	case len(parts) == 1:
		return parts[0]
	default:
		return UnknownNeighborhood
	}
}
