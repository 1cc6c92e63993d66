package tenant

import (
	"context"

	"github.com/relabs-tech/provisio/core/csql"
)

// Info is what the store knows about a tenant.
type Info struct {
	Name     string
	Timezone string
}

// Store is the narrow collaborator interface for persisted tenant data.
type Store interface {
	// FindByID returns the tenant's persisted data, or nil when unknown.
	FindByID(ctx context.Context, id string) (*Info, error)
}

// StaticStore is an in-memory Store for tests and small deployments.
type StaticStore map[string]Info

// FindByID implements Store.
func (s StaticStore) FindByID(ctx context.Context, id string) (*Info, error) {
	info, ok := s[id]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// SQLStore is a Store backed by a postgres relation.
type SQLStore struct {
	db *csql.DB
}

// MustNewSQLStore creates the tenant relation (if it does not exist) and
// returns the store.
func MustNewSQLStore(db *csql.DB) *SQLStore {
	if db == nil {
		panic("DB is missing")
	}
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `.tenant
(tenant_id varchar NOT NULL,
name varchar NOT NULL DEFAULT '',
timezone varchar NOT NULL DEFAULT '',
PRIMARY KEY(tenant_id)
);`)
	if err != nil {
		panic(err)
	}
	return &SQLStore{db: db}
}

// FindByID implements Store.
func (s *SQLStore) FindByID(ctx context.Context, id string) (*Info, error) {
	info := Info{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, timezone FROM `+s.db.Schema+`.tenant WHERE tenant_id=$1;`,
		id).Scan(&info.Name, &info.Timezone)
	if err == csql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}
