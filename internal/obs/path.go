package obs

import "strings"

// CanonicalPath collapses resource identifiers so metric labels stay low-cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 3 || segments[0] != "v1" {
		return path
	}

	switch segments[1] {
	case "associations", "violations", "users", "roles":
	default:
		return path
	}

	out := []string{segments[0], segments[1], ":id"}
	switch {
	case len(segments) == 3:
	case len(segments) == 4:
		out = append(out, segments[3])
	case len(segments) == 5 && segments[3] == "assignments":
		out = append(out, segments[3], ":roleID")
	default:
		return path
	}
	return "/" + strings.Join(out, "/")
}
