package metadata

import "strings"

// Endpoints resolves the composer's named endpoints against a rack
// controller's base URL.
type Endpoints struct{}

// Endpoint joins the base URL, the endpoint name, and any path arguments.
func (Endpoints) Endpoint(name, baseURL string, args ...string) string {
	parts := make([]string, 0, 2+len(args))
	parts = append(parts, strings.TrimRight(baseURL, "/"), name)
	parts = append(parts, args...)
	return strings.Join(parts, "/")
}
