package outbox

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// routesFile is the TOML shape of the optional route overrides file:
//
//	[routes]
//	"request.status_changed" = "/hooks/status"
type routesFile struct {
	Routes map[string]string `toml:"routes"`
}

// LoadRoutes reads per-kind endpoint path overrides from a TOML file.
// An empty path means no overrides. Every override must start with "/".
func LoadRoutes(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	var f routesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("routes file %s does not exist", path)
		}
		return nil, fmt.Errorf("decoding routes file %s: %w", path, err)
	}
	for kind, p := range f.Routes {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("route for %q must start with /: %q", kind, p)
		}
	}
	return f.Routes, nil
}
