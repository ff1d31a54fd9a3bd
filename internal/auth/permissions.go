package auth

import (
	"context"
	"errors"
)

// Built-in patent names.
const (
	PermUserManagement       = "UserManagement"
	PermPermissionManagement = "PermissionManagement"
	PermInventoryManagement  = "InventoryManagement"
	PermProductCatalog       = "ProductCatalog"
	PermStockControl         = "StockControl"
	PermSalesManagement      = "SalesManagement"
	PermPurchaseManagement   = "PurchaseManagement"
	PermPointOfSale          = "PointOfSale"
	PermReports              = "Reports"
	PermSalesReports         = "SalesReports"
	PermInventoryReports     = "InventoryReports"
	PermFinancialReports     = "FinancialReports"
	PermCustomerManagement   = "CustomerManagement"
	PermSupplierManagement   = "SupplierManagement"
	PermSystemConfiguration  = "SystemConfiguration"
	PermSystemLogs           = "SystemLogs"
	PermDatabaseBackup       = "DatabaseBackup"
	PermDashboard            = "Dashboard"
	PermPricingManagement    = "PricingManagement"
	PermWarehouseManagement  = "WarehouseManagement"
)

// Built-in family names.
const (
	RoleAdministrator     = "Administrator"
	RoleManager           = "Manager"
	RoleSalesperson       = "Salesperson"
	RoleInventoryManager  = "InventoryManager"
	RoleCashier           = "Cashier"
	RoleAuditor           = "Auditor"
	RoleWarehouseOperator = "WarehouseOperator"
	RoleAccountant        = "Accountant"
	RoleGuest             = "Guest"
)

var BuiltinPermissions = []string{
	PermUserManagement, PermPermissionManagement, PermInventoryManagement, PermProductCatalog,
	PermStockControl, PermSalesManagement, PermPurchaseManagement, PermPointOfSale,
	PermReports, PermSalesReports, PermInventoryReports, PermFinancialReports,
	PermCustomerManagement, PermSupplierManagement, PermSystemConfiguration, PermSystemLogs,
	PermDatabaseBackup, PermDashboard, PermPricingManagement, PermWarehouseManagement,
}

var BuiltinRoles = []string{
	RoleAdministrator, RoleManager, RoleSalesperson, RoleInventoryManager, RoleCashier,
	RoleAuditor, RoleWarehouseOperator, RoleAccountant, RoleGuest,
}

// EnsureCatalog creates the missing built-in patents and makes sure the
// Administrator family holds all of them. It returns the number of components written.
func (s *PermissionService) EnsureCatalog(ctx context.Context) (int, error) {
	patents, err := s.Patents(ctx)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]*Patent, len(patents))
	for _, p := range patents {
		byName[p.Name] = p
	}

	written := 0
	for _, name := range BuiltinPermissions {
		if _, ok := byName[name]; ok {
			continue
		}
		p := NewPatent(name)
		if err := s.Insert(ctx, p); err != nil {
			return written, err
		}
		byName[name] = p
		written++
	}

	admin, err := s.FamilyByName(ctx, RoleAdministrator)
	switch {
	case errors.Is(err, ErrNotFound):
		admin = NewFamily(RoleAdministrator)
		for _, name := range BuiltinPermissions {
			_ = admin.AddChild(byName[name])
		}
		if err := s.Insert(ctx, admin); err != nil {
			return written, err
		}
		return written + 1, nil
	case err != nil:
		return written, err
	}

	missing := false
	for _, name := range BuiltinPermissions {
		if !admin.HasPermission(name) {
			_ = admin.AddChild(byName[name])
			missing = true
		}
	}
	if !missing {
		return written, nil
	}
	if err := s.Update(ctx, admin); err != nil {
		return written, err
	}
	return written + 1, nil
}
