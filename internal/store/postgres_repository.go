/**
 * @description
 * PostgreSQL implementation of the `Repository` interface using pgx. Tables:
 * `internal_accounts`, `external_accounts`, and `payments`, all keyed by a
 * BIGSERIAL id so identifier assignment is atomic and strictly increasing in
 * the database itself. A unique index on `payments.idempotency_key` backs
 * the idempotency guard across processes.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jawnt/banking-service/internal/domain"
)

const uniqueViolationCode = "23505"

// PostgresRepository implements Repository against a pgx connection pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository backed by the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func (r *PostgresRepository) CreateInternalAccount(ctx context.Context, account *domain.InternalAccount) (*domain.InternalAccount, error) {
	query := `
		INSERT INTO internal_accounts (uuid, type, account_number, routing_number, organization_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		account.UUID,
		string(account.Type),
		account.AccountNumber,
		account.RoutingNumber,
		account.OrganizationID,
	).Scan(&account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create internal account: %w", err)
	}

	created := *account
	return &created, nil
}

func (r *PostgresRepository) GetInternalAccount(ctx context.Context, id int64) (*domain.InternalAccount, error) {
	query := `
		SELECT id, uuid, type, account_number, routing_number, organization_id
		FROM internal_accounts
		WHERE id = $1`

	var account domain.InternalAccount
	err := r.db.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.UUID,
		&account.Type,
		&account.AccountNumber,
		&account.RoutingNumber,
		&account.OrganizationID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get internal account: %w", err)
	}
	return &account, nil
}

func (r *PostgresRepository) ListInternalAccounts(ctx context.Context) ([]domain.InternalAccount, error) {
	query := `
		SELECT id, uuid, type, account_number, routing_number, organization_id
		FROM internal_accounts
		ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list internal accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.InternalAccount, 0)
	for rows.Next() {
		var account domain.InternalAccount
		if err := rows.Scan(
			&account.ID,
			&account.UUID,
			&account.Type,
			&account.AccountNumber,
			&account.RoutingNumber,
			&account.OrganizationID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan internal account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *PostgresRepository) UpdateInternalAccount(ctx context.Context, id int64, account *domain.InternalAccount) (*domain.InternalAccount, error) {
	query := `
		UPDATE internal_accounts
		SET type = $2, account_number = $3, routing_number = $4, organization_id = $5
		WHERE id = $1
		RETURNING id, uuid, type, account_number, routing_number, organization_id`

	var updated domain.InternalAccount
	err := r.db.QueryRow(ctx, query,
		id,
		string(account.Type),
		account.AccountNumber,
		account.RoutingNumber,
		account.OrganizationID,
	).Scan(
		&updated.ID,
		&updated.UUID,
		&updated.Type,
		&updated.AccountNumber,
		&updated.RoutingNumber,
		&updated.OrganizationID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to update internal account: %w", err)
	}
	return &updated, nil
}

func (r *PostgresRepository) DeleteInternalAccount(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM internal_accounts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete internal account: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) CreateExternalAccount(ctx context.Context, account *domain.ExternalAccount) (*domain.ExternalAccount, error) {
	query := `
		INSERT INTO external_accounts (uuid, plaid_account_id, account_number, routing_number, organization_id, bank_name, account_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		account.UUID,
		account.PlaidAccountID,
		account.AccountNumber,
		account.RoutingNumber,
		account.OrganizationID,
		account.BankName,
		account.AccountType,
	).Scan(&account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create external account: %w", err)
	}

	created := *account
	return &created, nil
}

func (r *PostgresRepository) ListExternalAccounts(ctx context.Context) ([]domain.ExternalAccount, error) {
	query := `
		SELECT id, uuid, plaid_account_id, account_number, routing_number, organization_id, bank_name, account_type
		FROM external_accounts
		ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list external accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.ExternalAccount, 0)
	for rows.Next() {
		var account domain.ExternalAccount
		if err := rows.Scan(
			&account.ID,
			&account.UUID,
			&account.PlaidAccountID,
			&account.AccountNumber,
			&account.RoutingNumber,
			&account.OrganizationID,
			&account.BankName,
			&account.AccountType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan external account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *PostgresRepository) FindExternalAccountByPlaidID(ctx context.Context, plaidAccountID string) (*domain.ExternalAccount, error) {
	query := `
		SELECT id, uuid, plaid_account_id, account_number, routing_number, organization_id, bank_name, account_type
		FROM external_accounts
		WHERE plaid_account_id = $1`

	var account domain.ExternalAccount
	err := r.db.QueryRow(ctx, query, plaidAccountID).Scan(
		&account.ID,
		&account.UUID,
		&account.PlaidAccountID,
		&account.AccountNumber,
		&account.RoutingNumber,
		&account.OrganizationID,
		&account.BankName,
		&account.AccountType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find external account: %w", err)
	}
	return &account, nil
}

// accountRefColumns splits an AccountRef into the nullable column pair used
// by the payments table.
func accountRefColumns(ref domain.AccountRef) (internalID *int64, externalID *string) {
	if ref.IsInternal() {
		return ref.Internal, nil
	}
	ext := ref.External
	return nil, &ext
}

func scanAccountRef(internalID *int64, externalID *string) domain.AccountRef {
	if internalID != nil {
		return domain.InternalRef(*internalID)
	}
	if externalID != nil {
		return domain.ExternalRef(*externalID)
	}
	return domain.AccountRef{}
}

func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	sourceInternal, sourceExternal := accountRefColumns(payment.SourceAccountID)
	destInternal, destExternal := accountRefColumns(payment.DestinationAccountID)

	query := `
		INSERT INTO payments (
			uuid, source_routing_number, destination_routing_number, amount,
			status, payment_type,
			source_internal_account_id, source_external_account_id,
			destination_internal_account_id, destination_external_account_id,
			idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		payment.UUID,
		payment.SourceRoutingNumber,
		payment.DestinationRoutingNumber,
		payment.Amount,
		string(payment.Status),
		string(payment.PaymentType),
		sourceInternal,
		sourceExternal,
		destInternal,
		destExternal,
		payment.IdempotencyKey,
	).Scan(&payment.ID)
	if err != nil {
		// The unique index on idempotency_key is the cross-process guard.
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdempotencyKey
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	created := *payment
	return &created, nil
}

const paymentColumns = `
	id, uuid, source_routing_number, destination_routing_number, amount,
	status, payment_type,
	source_internal_account_id, source_external_account_id,
	destination_internal_account_id, destination_external_account_id,
	idempotency_key`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		payment        domain.Payment
		sourceInternal *int64
		sourceExternal *string
		destInternal   *int64
		destExternal   *string
	)
	err := row.Scan(
		&payment.ID,
		&payment.UUID,
		&payment.SourceRoutingNumber,
		&payment.DestinationRoutingNumber,
		&payment.Amount,
		&payment.Status,
		&payment.PaymentType,
		&sourceInternal,
		&sourceExternal,
		&destInternal,
		&destExternal,
		&payment.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}
	payment.SourceAccountID = scanAccountRef(sourceInternal, sourceExternal)
	payment.DestinationAccountID = scanAccountRef(destInternal, destExternal)
	return &payment, nil
}

func (r *PostgresRepository) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

func (r *PostgresRepository) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (*domain.Payment, error) {
	// Terminal statuses are immutable: the WHERE clause refuses to move a
	// settled payment, and the fallthrough read returns the current record.
	query := `
		UPDATE payments
		SET status = $2
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + paymentColumns

	payment, err := scanPayment(r.db.QueryRow(ctx, query, id, string(status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.GetPayment(ctx, id)
		}
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	return payment, nil
}

func (r *PostgresRepository) FindPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to find payment by idempotency key: %w", err)
	}
	return payment, nil
}
