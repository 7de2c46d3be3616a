package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// Capabilities records optional schema features. It is resolved once at
// startup and never changes while the process runs.
type Capabilities struct {
	// DebtContacts is set when debts link to a contacts table.
	DebtContacts bool
}

// ProbeCapabilities inspects INFORMATION_SCHEMA of the current database.
func ProbeCapabilities(ctx context.Context, db *sql.DB) (Capabilities, error) {
	var caps Capabilities

	hasContacts, err := tableExists(ctx, db, "contacts")
	if err != nil {
		return caps, fmt.Errorf("ProbeCapabilities: %w", err)
	}
	hasContactID, err := columnExists(ctx, db, "debts", "contact_id")
	if err != nil {
		return caps, fmt.Errorf("ProbeCapabilities: %w", err)
	}

	caps.DebtContacts = hasContacts && hasContactID
	return caps, nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`

	var n int
	if err := db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return n > 0, nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`

	var n int
	if err := db.QueryRowContext(ctx, query, table, column).Scan(&n); err != nil {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}
