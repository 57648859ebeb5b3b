package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/transport-portal/internal/domain"
)

// ApplicationFilter captures listing parameters.
type ApplicationFilter struct {
	Kind            domain.ApplicationKind
	OwnerID         *string
	Statuses        []domain.ApplicationStatus
	ApplicationType *domain.ApplicationType
	Category        *string
	SearchTerm      *string
	Limit           int
	Offset          int
}

// MutateFunc edits a locked application in place. Returning an error aborts
// the write.
type MutateFunc func(app *domain.Application) error

// ApplicationRepository persists applications and their notes ledger.
type ApplicationRepository interface {
	Create(ctx context.Context, app *domain.Application) error
	GetByID(ctx context.Context, kind domain.ApplicationKind, id string) (*domain.Application, error)
	List(ctx context.Context, filter ApplicationFilter) ([]domain.Application, int, error)
	// Mutate performs an atomic read-modify-write of one application.
	Mutate(ctx context.Context, kind domain.ApplicationKind, id string, fn MutateFunc) (*domain.Application, error)
	// AppendNote adds a note to the end of the ledger.
	AppendNote(ctx context.Context, kind domain.ApplicationKind, id string, note *domain.Note) error
	// Delete removes an application once guard accepts its locked state.
	Delete(ctx context.Context, kind domain.ApplicationKind, id string, guard func(app *domain.Application) error) error
	// Snapshot returns every application of a kind without notes.
	Snapshot(ctx context.Context, kind domain.ApplicationKind) ([]domain.Application, error)
}

type applicationRepository struct {
	pool *pgxpool.Pool
}

// NewApplicationRepository returns a Postgres-backed implementation.
func NewApplicationRepository(pool *pgxpool.Pool) ApplicationRepository {
	return &applicationRepository{pool: pool}
}

// likeEscaper makes a search term match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const applicationColumns = `id, kind, owner_id, application_type, status, details, registration_number,
               fee_base, fee_penalty, fee_total, payment_status, payment_date,
               review_date, completion_date, created_at, updated_at`

func (r *applicationRepository) Create(ctx context.Context, app *domain.Application) error {
	details, err := json.Marshal(app.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	const query = `
        INSERT INTO applications (kind, owner_id, application_type, status, category, details, search_text,
            registration_number, fee_base, fee_penalty, payment_status, payment_date, review_date, completion_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, fee_total, created_at, updated_at`
	err = r.pool.QueryRow(ctx, query,
		app.Kind,
		app.OwnerID,
		app.ApplicationType,
		app.Status,
		app.Details.Category(),
		details,
		searchText(app),
		app.RegistrationNumber,
		app.Fees.Base,
		app.Fees.Penalty,
		app.Fees.PaymentStatus,
		app.Fees.PaymentDate,
		app.ReviewDate,
		app.CompletionDate,
	).Scan(&app.ID, &app.Fees.Total, &app.CreatedAt, &app.UpdatedAt)
	return translate(err, uniqueValues(app))
}

func (r *applicationRepository) GetByID(ctx context.Context, kind domain.ApplicationKind, id string) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id=$1 AND kind=$2`
	app, err := scanApplication(r.pool.QueryRow(ctx, query, id, kind))
	if err != nil {
		return nil, translate(err, nil)
	}
	notes, err := listNotes(ctx, r.pool, app.ID)
	if err != nil {
		return nil, err
	}
	app.Notes = notes
	return app, nil
}

func (r *applicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]domain.Application, int, error) {
	clauses := []string{"kind=$1"}
	args := []any{filter.Kind}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ApplicationType != nil {
		args = append(args, *filter.ApplicationType)
		clauses = append(clauses, fmt.Sprintf("application_type=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(strings.TrimSpace(*filter.SearchTerm)))+"%")
		clauses = append(clauses, fmt.Sprintf(`search_text LIKE $%d ESCAPE '\'`, len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM applications WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err, nil)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		applicationColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := scanApplications(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *applicationRepository) Mutate(ctx context.Context, kind domain.ApplicationKind, id string, fn MutateFunc) (*domain.Application, error) {
	var result *domain.Application
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + applicationColumns + ` FROM applications WHERE id=$1 AND kind=$2 FOR UPDATE`
		app, err := scanApplication(tx.QueryRow(ctx, query, id, kind))
		if err != nil {
			return translate(err, nil)
		}
		if err := fn(app); err != nil {
			return err
		}
		details, err := json.Marshal(app.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		const update = `
            UPDATE applications SET status=$1, category=$2, details=$3, search_text=$4, registration_number=$5,
                fee_base=$6, fee_penalty=$7, payment_status=$8, payment_date=$9, review_date=$10,
                completion_date=$11, updated_at=NOW()
            WHERE id=$12
            RETURNING fee_total, updated_at`
		err = tx.QueryRow(ctx, update,
			app.Status,
			app.Details.Category(),
			details,
			searchText(app),
			app.RegistrationNumber,
			app.Fees.Base,
			app.Fees.Penalty,
			app.Fees.PaymentStatus,
			app.Fees.PaymentDate,
			app.ReviewDate,
			app.CompletionDate,
			app.ID,
		).Scan(&app.Fees.Total, &app.UpdatedAt)
		if err != nil {
			return translate(err, uniqueValues(app))
		}
		notes, err := listNotes(ctx, tx, app.ID)
		if err != nil {
			return err
		}
		app.Notes = notes
		result = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *applicationRepository) AppendNote(ctx context.Context, kind domain.ApplicationKind, id string, note *domain.Note) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var appID string
		err := tx.QueryRow(ctx,
			`UPDATE applications SET updated_at=NOW() WHERE id=$1 AND kind=$2 RETURNING id`, id, kind,
		).Scan(&appID)
		if err != nil {
			return translate(err, nil)
		}
		const insert = `
            INSERT INTO application_notes (application_id, body, author_id, created_at)
            VALUES ($1,$2,$3,$4)
            RETURNING id, created_at`
		note.ApplicationID = appID
		return tx.QueryRow(ctx, insert, appID, note.Text, note.AuthorID, note.CreatedAt).
			Scan(&note.ID, &note.CreatedAt)
	})
}

func (r *applicationRepository) Delete(ctx context.Context, kind domain.ApplicationKind, id string, guard func(app *domain.Application) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + applicationColumns + ` FROM applications WHERE id=$1 AND kind=$2 FOR UPDATE`
		app, err := scanApplication(tx.QueryRow(ctx, query, id, kind))
		if err != nil {
			return translate(err, nil)
		}
		if guard != nil {
			if err := guard(app); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `DELETE FROM applications WHERE id=$1`, app.ID)
		return err
	})
}

func (r *applicationRepository) Snapshot(ctx context.Context, kind domain.ApplicationKind) ([]domain.Application, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE kind=$1`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApplications(rows)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listNotes(ctx context.Context, q queryer, applicationID string) ([]domain.Note, error) {
	const query = `
        SELECT id, application_id, body, author_id, created_at
        FROM application_notes WHERE application_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := q.Query(ctx, query, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		var note domain.Note
		if err := rows.Scan(&note.ID, &note.ApplicationID, &note.Text, &note.AuthorID, &note.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var (
		app     domain.Application
		details []byte
	)
	if err := row.Scan(
		&app.ID,
		&app.Kind,
		&app.OwnerID,
		&app.ApplicationType,
		&app.Status,
		&details,
		&app.RegistrationNumber,
		&app.Fees.Base,
		&app.Fees.Penalty,
		&app.Fees.Total,
		&app.Fees.PaymentStatus,
		&app.Fees.PaymentDate,
		&app.ReviewDate,
		&app.CompletionDate,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		return nil, err
	}
	decoded, err := domain.DecodeDetails(app.Kind, details)
	if err != nil {
		return nil, fmt.Errorf("decode details of %s: %w", app.ID, err)
	}
	app.Details = decoded
	return &app, nil
}

func scanApplications(rows pgx.Rows) ([]domain.Application, error) {
	result := []domain.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *app)
	}
	return result, rows.Err()
}

func searchText(app *domain.Application) string {
	parts := append([]string{}, app.Details.SearchText()...)
	if app.RegistrationNumber != nil {
		parts = append(parts, *app.RegistrationNumber)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func uniqueValues(app *domain.Application) map[string]string {
	values := map[string]string{}
	for field, value := range app.Details.UniqueKeys() {
		values[field] = value
	}
	if app.RegistrationNumber != nil {
		values["registrationNumber"] = *app.RegistrationNumber
	}
	return values
}
