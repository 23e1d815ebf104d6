package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS inventory_events (
		seq             BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		id              VARCHAR(64)  NOT NULL,
		owner_scope     VARCHAR(128) NOT NULL,
		storage_unit_id VARCHAR(128) NOT NULL,
		item_id         VARCHAR(128) NOT NULL,
		kind            VARCHAR(16)  NOT NULL,
		occurred_at     BIGINT       NOT NULL,
		performed_by    VARCHAR(255) NOT NULL,
		notes           TEXT         NOT NULL,
		payload         JSON         NOT NULL,
		UNIQUE KEY uq_inventory_events_id (id),
		KEY idx_inventory_events_scope (owner_scope, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS access_events (
		seq         BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		id          VARCHAR(64)  NOT NULL,
		company_id  VARCHAR(128) NOT NULL,
		person_id   VARCHAR(128) NOT NULL,
		person_name VARCHAR(255) NOT NULL,
		action      VARCHAR(8)   NOT NULL,
		occurred_at BIGINT       NOT NULL,
		UNIQUE KEY uq_access_events_id (id),
		KEY idx_access_events_company (company_id, seq)
	)`,
}

// MySQLAdapter is the durable event store backed by MySQL. Rows are only ever
// inserted; AUTO_INCREMENT seq gives the append order.
type MySQLAdapter struct {
	sqlEventStore
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{sqlEventStore{db: db, isDuplicate: isMySQLDuplicateEntry}}
}

func isMySQLDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// Migrate creates the event tables if they do not exist.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	return m.migrate(ctx, mysqlSchema)
}
