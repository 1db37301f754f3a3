package models

// Permission constants
const (
	// Alert permissions
	PermissionAlertRead    = "alert:read"
	PermissionAlertResolve = "alert:resolve"
	PermissionAlertIngest  = "alert:ingest"

	// Dispute permissions
	PermissionDisputeRead   = "dispute:read"
	PermissionDisputeWrite  = "dispute:write"
	PermissionDisputeRefund = "dispute:refund"

	// Ledger permissions
	PermissionWalletRead = "wallet:read"

	// Audit permissions
	PermissionAuditRead = "audit:read"

	// Admin permissions
	PermissionReadAdmin  = "admin:read"
	PermissionWriteAdmin = "admin:write"
)

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionReadAdmin,
			PermissionWriteAdmin,
			PermissionAlertRead,
			PermissionAlertResolve,
			PermissionAlertIngest,
			PermissionDisputeRead,
			PermissionDisputeWrite,
			PermissionDisputeRefund,
			PermissionWalletRead,
			PermissionAuditRead,
		}
	case RoleOperator:
		return []string{
			PermissionAlertRead,
			PermissionAlertResolve,
			PermissionDisputeRead,
			PermissionDisputeWrite,
			PermissionDisputeRefund,
			PermissionWalletRead,
			PermissionAuditRead,
		}
	case RoleScorer:
		return []string{
			PermissionAlertIngest,
			PermissionDisputeWrite,
		}
	default:
		return []string{}
	}
}
