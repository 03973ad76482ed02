package constants

import "fmt"

const (
	RoleAdmin   = "admin"
	RoleBursar  = "bursar"
	RoleParent  = "parent"
	RoleStudent = "student"
)

// Role error message templates
const (
	ErrOnlyFinanceStaffCanAccess = "only finance staff may access %s"
	ErrOnlyAdminsCanAccess       = "only admins may access %s"
)

func RoleErrorFinance(feature string) string {
	return fmt.Sprintf(ErrOnlyFinanceStaffCanAccess, feature)
}

func RoleErrorAdmin(feature string) string {
	return fmt.Sprintf(ErrOnlyAdminsCanAccess, feature)
}

var (
	AllRoles = []string{
		RoleAdmin,
		RoleBursar,
		RoleParent,
		RoleStudent,
	}

	// FinanceStaff may issue invoices, record cash and review audits.
	FinanceStaff = []string{
		RoleAdmin,
		RoleBursar,
	}

	AdminOnly = []string{
		RoleAdmin,
	}
)
