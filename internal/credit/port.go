package credit

import (
	"context"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/pkg/money"
)

// Repository defines the interface for credit ledger persistence.
// Ledger entries and applications are append-only; the only mutable row
// is the client's cached rollup.
type Repository interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, tenantID, id uuid.UUID) (*Client, error)
	// GetClientForUpdate row-locks the client so concurrent credit
	// operations for the same client serialize.
	GetClientForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Client, error)
	ListClients(ctx context.Context, tenantID uuid.UUID) ([]*Client, error)
	// UpdateClientCreditRollup writes the cached balance. Called only
	// after the underlying ledger entry is durably written.
	UpdateClientCreditRollup(ctx context.Context, tenantID, clientID uuid.UUID, balance money.Money) error

	AppendEntry(ctx context.Context, entry *LedgerEntry) error
	ListEntries(ctx context.Context, tenantID, clientID uuid.UUID) ([]*LedgerEntry, error)
	// SumEntries computes the authoritative balance from the ledger.
	SumEntries(ctx context.Context, tenantID, clientID uuid.UUID) (money.Money, error)

	CreateApplication(ctx context.Context, app *Application) error
	ListApplications(ctx context.Context, tenantID uuid.UUID) ([]*Application, error)

	// Transaction management
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}
