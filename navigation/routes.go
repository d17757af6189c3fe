// Package navigation decides, per route transition, whether the session must
// be reconciled before a view is entered.
package navigation

import (
	"fmt"
	"strings"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// Route names of the application views
const (
	RouteHome              = "Home"
	RouteSearch            = "Search"
	RouteSettings          = "Settings"
	RoutePDF               = "PDF"
	RouteD4S               = "D4S"
	RouteAdmin             = "Admin"
	RouteAdminSettings     = "AdminSettings"
	RouteAdminIntegrations = "AdminIntegrations"
	RouteAdminStatistics   = "AdminStatistics"
	RouteAdminInvites      = "AdminInvites"
	RouteAuth              = "Auth"
	RouteTaskList          = "Task List"
	RouteTaskView          = "Task View"
)

// Route is one entry of the routing table. Path segments starting with ':'
// match any single non-empty segment. A route with Redirect is never entered.
type Route struct {
	Name     string
	Path     string
	Public   bool
	Redirect string
}

// Routes is an ordered routing table; the first match wins.
type Routes []Route

// DefaultRoutes is the application's routing table. Only the login view is
// public.
func DefaultRoutes() Routes {
	return Routes{
		{Name: RouteHome, Path: "/"},
		{Name: RouteSearch, Path: "/search"},
		{Name: RouteSettings, Path: "/settings"},
		{Name: RoutePDF, Path: "/pdf/:id"},
		{Name: RouteD4S, Path: "/d4s"},
		{Name: RouteAdmin, Path: "/admin", Redirect: "/admin/settings"},
		{Name: RouteAdminSettings, Path: "/admin/settings"},
		{Name: RouteAdminIntegrations, Path: "/admin/integrations"},
		{Name: RouteAdminStatistics, Path: "/admin/statistics"},
		{Name: RouteAdminInvites, Path: "/admin/invites"},
		{Name: RouteAuth, Path: "/auth", Public: true},
		{Name: RouteTaskList, Path: "/admin/tasks"},
		{Name: RouteTaskView, Path: "/admin/task/:id"},
	}
}

// Match finds the route for path and returns the values of its parameters.
// Query strings and fragments are ignored.
func (rs Routes) Match(path string) (Route, map[string]string, bool) {
	segments := split(cleanPath(path))
	for _, r := range rs {
		if params, ok := matchSegments(split(r.Path), segments); ok {
			return r, params, true
		}
	}
	return Route{}, nil, false
}

// Resolve matches path, following one static redirect, and returns the route
// entered together with the concrete path.
func (rs Routes) Resolve(path string) (Route, string, error) {
	route, _, ok := rs.Match(path)
	if !ok {
		return Route{}, "", fmt.Errorf("[navigation Resolve] %s: %w", path, autherrors.ErrUnknownRoute)
	}
	if route.Redirect == "" {
		return route, cleanPath(path), nil
	}

	target := route.Redirect
	route, _, ok = rs.Match(target)
	if !ok || route.Redirect != "" {
		return Route{}, "", fmt.Errorf("[navigation Resolve] redirect %s -> %s: %w", path, target, autherrors.ErrUnknownRoute)
	}
	return route, cleanPath(target), nil
}

// CheckLoginRoute fails unless path resolves to a public route. The guard
// sends sessionless transitions there, so it must not need a session itself.
func (rs Routes) CheckLoginRoute(path string) error {
	route, _, err := rs.Resolve(path)
	if err != nil {
		return err
	}
	if !route.Public {
		return fmt.Errorf("[navigation CheckLoginRoute] %s (%s): %w", path, route.Name, autherrors.ErrProtectedLoginRoute)
	}
	return nil
}

// ByName returns the route called name.
func (rs Routes) ByName(name string) (Route, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}

func cleanPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

func split(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func matchSegments(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	var params map[string]string
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if segments[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[p[1:]] = segments[i]
			continue
		}
		if p != segments[i] {
			return nil, false
		}
	}
	return params, true
}
