package menu

import (
	"net/url"
	"sort"
	"strings"
)

// PathURLs is a URLGenerator for hosts without a router: each route maps
// to a path and params become the query string. Unknown routes produce "#".
type PathURLs map[string]string

func (p PathURLs) Generate(route string, params map[string]string) string {
	path, ok := p[route]
	if !ok {
		return "#"
	}
	if len(params) == 0 {
		return path
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	q := make([]string, 0, len(keys))
	for _, k := range keys {
		q = append(q, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return path + "?" + strings.Join(q, "&")
}

// DefaultPaths mirrors the admin routes of the PERSCOM plugin.
func DefaultPaths(prefix string) PathURLs {
	prefix = strings.TrimRight(prefix, "/")
	return PathURLs{
		"perscom_admin_configuration":      prefix + "/configuration",
		"perscom_admin_user_list":          prefix + "/users",
		RouteSubmissionList:                prefix + "/submissions",
		"perscom_admin_operations_list":    prefix + "/operations",
		"perscom_admin_courses_list":       prefix + "/courses",
		"perscom_admin_unit_list":          prefix + "/units",
		"perscom_admin_position_list":      prefix + "/positions",
		"perscom_admin_specialty_list":     prefix + "/specialties",
		"perscom_admin_status_list":        prefix + "/statuses",
		"perscom_admin_award_list":         prefix + "/awards",
		"perscom_admin_qualification_list": prefix + "/qualifications",
	}
}

// StaticVersions answers IsVersionInstalled from a fixed plugin -> version table.
type StaticVersions map[string]string

func (s StaticVersions) IsVersionInstalled(plugin, version string) bool {
	v, ok := s[plugin]
	return ok && v == version
}
