package domain

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

const (
	PermManageUsers     = "manage_users"
	PermResetPIN        = "reset_pin"
	PermViewReports     = "view_reports"
	PermMakeSales       = "make_sales"
	PermManageInventory = "manage_inventory"
	PermManageSuppliers = "manage_suppliers"
)

var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermManageUsers,
		PermResetPIN,
		PermViewReports,
		PermMakeSales,
		PermManageInventory,
		PermManageSuppliers,
	},
	RoleManager: {
		PermViewReports,
		PermMakeSales,
		PermManageInventory,
	},
	RoleCashier: {
		PermMakeSales,
	},
}

func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission is a pure lookup against the fixed role table. Unknown
// roles have no permissions.
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// Permissions returns a copy of the role's permission set.
func Permissions(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
