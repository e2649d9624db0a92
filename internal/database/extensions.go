package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/exttrust/exttrust/internal/inventory"
)

// ListInstalledExtensions returns the latest extension report for a host,
// in the order the endpoint agent reported them
func (db *DB) ListInstalledExtensions(ctx context.Context, hostID string) ([]inventory.Module, error) {
	query := `
		SELECT extension_id, name, version, description, enabled,
			   install_type, type, permissions, host_permissions
		FROM installed_extensions
		WHERE host_id = $1
		ORDER BY report_position ASC
	`

	rows, err := db.pool.Query(ctx, query, hostID)
	if err != nil {
		return nil, fmt.Errorf("query installed extensions: %w", err)
	}

	modules, err := pgx.CollectRows(rows, scanModule)
	if err != nil {
		return nil, fmt.Errorf("scan installed extensions: %w", err)
	}

	return modules, nil
}

// scanModule maps one installed_extensions row to a Module
func scanModule(row pgx.CollectableRow) (inventory.Module, error) {
	var (
		m           inventory.Module
		description *string
		installType string
		kind        string
	)

	err := row.Scan(
		&m.ID, &m.Name, &m.Version, &description, &m.Enabled,
		&installType, &kind, &m.Permissions, &m.HostPermissions,
	)
	if err != nil {
		return inventory.Module{}, err
	}

	if description != nil {
		m.Description = *description
	}
	m.Provenance = inventory.ParseProvenance(installType)
	m.Kind = inventory.ParseKind(kind)

	return m, nil
}
