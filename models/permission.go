package models

import "strings"

// allowed actions per module, in the same "A;B" form role modules use
var rolePermissions = map[UserRole]map[PermissionModule]string{
	UserRoleAdmin: {
		PermissionModuleInventory: "CREATE;READ;UPDATE;DELETE",
		PermissionModuleInbound:   "CREATE;READ;UPDATE;DELETE",
		PermissionModuleOutbound:  "CREATE;READ;UPDATE;DELETE",
		PermissionModuleContact:   "CREATE;READ;UPDATE;DELETE",
		PermissionModuleUser:      "CREATE;READ;UPDATE;DELETE",
	},
	UserRoleManager: {
		PermissionModuleInventory: "CREATE;READ;UPDATE;DELETE",
		PermissionModuleInbound:   "CREATE;READ;UPDATE;DELETE",
		PermissionModuleOutbound:  "CREATE;READ;UPDATE;DELETE",
		PermissionModuleContact:   "CREATE;READ;UPDATE;DELETE",
		PermissionModuleUser:      "READ",
	},
	UserRoleOperator: {
		PermissionModuleInventory: "CREATE;READ",
		PermissionModuleInbound:   "CREATE;READ",
		PermissionModuleOutbound:  "CREATE;READ",
		PermissionModuleContact:   "CREATE;READ",
	},
}

func splitActions(s string) []string {
	return strings.Split(s, ";")
}

// HasPermission checks the static role matrix. Unknown roles have no permissions.
func HasPermission(role UserRole, module PermissionModule, action PermissionAction) bool {
	modules, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, a := range splitActions(modules[module]) {
		if a == string(action) {
			return true
		}
	}
	return false
}

type AllowedModule struct {
	ModuleName     PermissionModule `json:"module_name"`
	AllowedActions string           `json:"allowed_actions"`
}

// AllowedModules lists what a role may do, for clients that hide actions up front.
func AllowedModules(role UserRole) []AllowedModule {
	var result []AllowedModule
	for _, m := range []PermissionModule{
		PermissionModuleInventory, PermissionModuleInbound, PermissionModuleOutbound,
		PermissionModuleContact, PermissionModuleUser,
	} {
		if actions := rolePermissions[role][m]; actions != "" {
			result = append(result, AllowedModule{ModuleName: m, AllowedActions: actions})
		}
	}
	return result
}
