package gatekeep

import "strings"

// ValidPermissionKey reports whether key has the "resource.action" shape:
// two non-empty segments of lowercase letters, digits, and underscores
// joined by a single dot (e.g. "work_orders.view").
func ValidPermissionKey(key string) bool {
	resource, action, ok := SplitPermissionKey(key)
	return ok && validSegment(resource) && validSegment(action)
}

// SplitPermissionKey splits a permission key into its resource and action
// segments. ok is false when the key does not contain exactly one dot.
func SplitPermissionKey(key string) (resource, action string, ok bool) {
	resource, action, found := strings.Cut(key, ".")
	if !found || resource == "" || action == "" || strings.Contains(action, ".") {
		return "", "", false
	}
	return resource, action, true
}

func validSegment(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return s != ""
}
