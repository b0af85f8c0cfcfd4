package github

import "regexp"

// routePattern matches Express-style route declarations: a get/post/put/
// patch/delete/all call on a router or app object whose first argument is a
// string literal path.
var routePattern = regexp.MustCompile(`\b(?:router|app)\.(?:get|post|put|patch|delete|all)\(\s*["']([^"']+)["']`)

// ExtractRoutes scans a source file's text for declared API routes and
// returns the deduplicated path literals in first-occurrence order. It is a
// pure function: identical input always yields identical output.
func ExtractRoutes(source, sourceFile string) RouteExtraction {
	matches := routePattern.FindAllStringSubmatch(source, -1)

	seen := make(map[string]struct{}, len(matches))
	routes := make([]string, 0, len(matches))
	for _, m := range matches {
		path := m[1]
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		routes = append(routes, path)
	}

	return RouteExtraction{
		RouteCount: len(routes),
		Routes:     routes,
		SourceFile: sourceFile,
	}
}
