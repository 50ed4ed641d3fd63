// Package rbac holds the static role to permission and role to page tables.
package rbac

import (
	"slices"
	"strings"

	"github.com/deppfellow/erm/internal/model"
)

type Permission string

const (
	EmployeesRead   Permission = "employees:read"
	EmployeesWrite  Permission = "employees:write"
	EmployeesDelete Permission = "employees:delete"

	PoliciesRead    Permission = "policies:read"
	PoliciesWrite   Permission = "policies:write"
	PoliciesArchive Permission = "policies:archive"

	ResourceTypesWrite Permission = "resource_types:write"
	ResourcesRead      Permission = "resources:read"
	ResourcesWrite     Permission = "resources:write"
	ResourcesAssign    Permission = "resources:assign"
	ResourcesRequest   Permission = "resources:request"

	ApprovalsRead   Permission = "approvals:read"
	ApprovalsDecide Permission = "approvals:decide"

	TimelineRead Permission = "timeline:read"

	UsersManage Permission = "users:manage"
)

var rolePermissions = map[model.Role][]Permission{
	model.RoleAdmin: {
		EmployeesRead, EmployeesWrite, EmployeesDelete,
		PoliciesRead, PoliciesWrite, PoliciesArchive,
		ResourceTypesWrite, ResourcesRead, ResourcesWrite, ResourcesAssign, ResourcesRequest,
		ApprovalsRead, ApprovalsDecide,
		TimelineRead,
		UsersManage,
	},
	model.RoleHR: {
		EmployeesRead, EmployeesWrite, EmployeesDelete,
		PoliciesRead, PoliciesWrite, PoliciesArchive,
		ResourceTypesWrite, ResourcesRead, ResourcesWrite, ResourcesAssign, ResourcesRequest,
		ApprovalsRead, ApprovalsDecide,
		TimelineRead,
	},
	model.RoleManager: {
		EmployeesRead,
		PoliciesRead, PoliciesWrite,
		ResourcesRead, ResourcesRequest,
		ApprovalsRead, ApprovalsDecide,
		TimelineRead,
	},
	model.RoleEmployee: {
		PoliciesRead,
		ResourcesRead, ResourcesRequest,
		ApprovalsRead,
	},
}

// HasPermission reports whether role grants perm. Unknown roles have no
// permissions.
func HasPermission(role model.Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// Permissions returns a copy of the permissions granted to role.
func Permissions(role model.Role) []Permission {
	return slices.Clone(rolePermissions[role])
}

// Page prefixes of the web client.
const (
	PageDashboard = "/"
	PageEmployees = "/employees"
	PagePolicies  = "/policies"
	PageResources = "/resources"
	PageApprovals = "/approvals"
	PageTimeline  = "/timeline"
	PageAdmin     = "/admin"
)

var pageRoles = map[string][]model.Role{
	PageDashboard: model.Roles,
	PageEmployees: {model.RoleAdmin, model.RoleHR, model.RoleManager},
	PagePolicies:  model.Roles,
	PageResources: model.Roles,
	PageApprovals: model.Roles,
	PageTimeline:  {model.RoleAdmin, model.RoleHR, model.RoleManager},
	PageAdmin:     {model.RoleAdmin},
	// HR maintains resource type schemas but not accounts.
	PageAdmin + "/resource-types": {model.RoleAdmin, model.RoleHR},
}

// CanAccessPage reports whether role may open path. The longest registered
// prefix that matches on a segment boundary decides; paths outside every
// prefix are denied.
func CanAccessPage(role model.Role, path string) bool {
	prefix, ok := matchPage(path)
	if !ok {
		return false
	}
	return slices.Contains(pageRoles[prefix], role)
}

func matchPage(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	best := ""
	found := false
	for prefix := range pageRoles {
		if !pathHasPrefix(path, prefix) {
			continue
		}
		if !found || len(prefix) > len(best) {
			best = prefix
			found = true
		}
	}
	return best, found
}

func pathHasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return path == "/"
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// Pages returns the page prefixes role may open, sorted.
func Pages(role model.Role) []string {
	var pages []string
	for prefix, roles := range pageRoles {
		if slices.Contains(roles, role) {
			pages = append(pages, prefix)
		}
	}
	slices.Sort(pages)
	return pages
}
