package classifier

import "strings"

// Crops lists the crops the disease models are trained for
var Crops = []string{"chilli", "corn", "groundnut", "paddy", "sugarcane", "tomato"}

// NormalizeCropName maps user-entered and model-emitted crop names, including
// common aliases and misspellings, onto a canonical crop key. Unrecognized
// names come back lowercased with spaces and underscores removed.
func NormalizeCropName(name string) string {
	clean := strings.ToLower(strings.TrimSpace(name))
	clean = strings.NewReplacer(" ", "", "_", "").Replace(clean)

	switch {
	case clean == "":
		return ""
	case strings.Contains(clean, "chilli") || strings.Contains(clean, "chili"):
		return "chilli"
	case strings.Contains(clean, "corn") || strings.Contains(clean, "maize"):
		return "corn"
	case strings.Contains(clean, "ground") && strings.Contains(clean, "nut"):
		return "groundnut"
	case strings.Contains(clean, "paddy") || strings.Contains(clean, "rice"):
		return "paddy"
	case strings.Contains(clean, "sugar") && strings.Contains(clean, "cane"):
		return "sugarcane"
	case strings.Contains(clean, "tomato") || strings.Contains(clean, "tomoto"):
		return "tomato"
	}

	return clean
}

// IsKnownCrop reports whether name normalizes to a supported crop
func IsKnownCrop(name string) bool {
	crop := NormalizeCropName(name)
	for _, c := range Crops {
		if c == crop {
			return true
		}
	}
	return false
}
