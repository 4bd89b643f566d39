package route

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// RouterLoader initializes routes on the gin engine.
type RouterLoader func(r *gin.Engine) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers routes on the main API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management server (health,
	// metrics). When no dedicated management port is configured, these are
	// mounted on the main server.
	RouteTypeManagement
)

// Plugin represents a route plugin with an order for deterministic mount sequence.
type Plugin struct {
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var plugins []Plugin

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Loaders returns the loaders of all plugins of the given type, sorted by order.
func Loaders(t RouteType) []RouterLoader {
	var matched []Plugin
	for _, p := range plugins {
		if p.Type == t {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Order < matched[j].Order })

	loaders := make([]RouterLoader, len(matched))
	for i, p := range matched {
		loaders[i] = p.Loader
	}
	return loaders
}
