package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
//
// These are API-access roles, not approval-routing roles. The workflow
// resolver matches approvers against directory roles (finance, hr, ...);
// RBAC only gates which endpoints a caller may reach.
const (
	RoleOwner             = "owner"  // workspace admin: manages templates
	RoleMember            = "member" // regular user: creates and acts on requests
	RoleSuperAdmin        = "super_admin"
	RoleComplianceOfficer = "compliance_officer" // hidden role: audit read access only
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleComplianceOfficer }
