package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wellywell/redeemy/internal/store"
	"github.com/wellywell/redeemy/internal/types"
)

const orderColumns = `id, code, email, name, order_id, status, is_redeemed, login_info,
	pending_step::text AS pending_step,
	processing_step::text AS processing_step,
	completed_step::text AS completed_step,
	created_at, updated_at`

type Database struct {
	pool *pgxpool.Pool
}

func NewDatabase(connString string) (*Database, error) {

	err := Migrate(connString)

	if err != nil {
		return nil, fmt.Errorf("failed to migrate %w", err)
	}

	ctx := context.Background()
	p, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	return &Database{
		pool: p,
	}, nil
}

func (d *Database) Close() {
	d.pool.Close()
}

func (d *Database) CreateUser(ctx context.Context, username string, password string) error {

	query := `
		INSERT INTO auth_user (username, password)
		VALUES ($1, $2)
		`
	_, err := d.pool.Exec(ctx, query, username, password)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return fmt.Errorf("%w", &store.UserExistsError{Username: username})
		}
		return err
	}
	return nil
}

func (d *Database) GetUserHashedPassword(ctx context.Context, username string) (string, error) {
	query := `
		SELECT password
		FROM auth_user
		WHERE username = $1`

	row := d.pool.QueryRow(ctx, query, username)

	var password string

	err := row.Scan(&password)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w", &store.UserNotFoundError{Username: username})
		}
		return "", err
	}
	return password, nil
}

func (d *Database) FindByCode(ctx context.Context, code string) (*types.OrderRecord, error) {
	return d.findOne(ctx, "code", code)
}

func (d *Database) FindByID(ctx context.Context, id string) (*types.OrderRecord, error) {
	return d.findOne(ctx, "id", id)
}

func (d *Database) findOne(ctx context.Context, column string, value string) (*types.OrderRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s = $1`, orderColumns, column)

	rows, err := d.pool.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed querying order %w", err)
	}

	order, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[types.OrderRecord])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w", store.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed unpacking row %w", err)
	}
	return &order, nil
}

func (d *Database) ListOrders(ctx context.Context, filter types.OrderFilter) ([]types.OrderRecord, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Redeemed != nil {
		args = append(args, *filter.Redeemed)
		conditions = append(conditions, fmt.Sprintf("is_redeemed = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(code ILIKE $%[1]d OR order_id ILIKE $%[1]d OR email ILIKE $%[1]d OR name ILIKE $%[1]d)", n))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	row := d.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM orders %s`, where), args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed counting orders %w", err)
	}

	orderBy := "created_at, id"
	if filter.Sort == types.RecentlyUpdatedFirst {
		orderBy = "updated_at DESC, id DESC"
	}
	limit := "ALL"
	if filter.Limit > 0 {
		limit = fmt.Sprint(filter.Limit)
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY %s
		LIMIT %s OFFSET %d`, orderColumns, where, orderBy, limit, max(filter.Offset, 0))

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed collecting rows %w", err)
	}

	orders, err := pgx.CollectRows(rows, pgx.RowToStructByName[types.OrderRecord])
	if err != nil {
		return nil, 0, fmt.Errorf("failed unpacking rows %w", err)
	}
	return orders, total, nil
}

func (d *Database) InsertOrder(ctx context.Context, order types.NewOrder) (*types.OrderRecord, error) {
	id := order.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := order.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	steps := make([]*string, 0, 3)
	for _, step := range []types.Step{order.Pending, order.Processing, order.Completed} {
		encoded, err := encodeStep(step)
		if err != nil {
			return nil, err
		}
		steps = append(steps, encoded)
	}

	query := fmt.Sprintf(`
		INSERT INTO orders (id, code, name, email, order_id, status, is_redeemed,
			pending_step, processing_step, completed_step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7::text::jsonb, $8::text::jsonb, $9::text::jsonb, $10, $10)
		RETURNING %s`, orderColumns)

	rows, err := d.pool.Query(ctx, query, id, order.Code, order.Name, order.Email, order.OrderID,
		string(types.PendingStatus), steps[0], steps[1], steps[2], created)
	if err == nil {
		var rec types.OrderRecord
		rec, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[types.OrderRecord])
		if err == nil {
			return &rec, nil
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return nil, fmt.Errorf("%w", &store.CodeExistsError{Code: order.Code})
	}
	return nil, fmt.Errorf("failed inserting order %w", err)
}

func (d *Database) UpdateByCode(ctx context.Context, code string, patch types.OrderPatch) (*types.OrderRecord, error) {
	return d.update(ctx, "code", code, patch)
}

func (d *Database) UpdateByID(ctx context.Context, id string, patch types.OrderPatch) (*types.OrderRecord, error) {
	return d.update(ctx, "id", id, patch)
}

// update changes the row in a single statement. When nothing is returned the
// row is read again only to tell a missing order from a failed guard.
func (d *Database) update(ctx context.Context, keyColumn string, key string, patch types.OrderPatch) (*types.OrderRecord, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any, cast string) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d%s", column, len(args), cast))
	}

	if patch.Email != nil {
		set("email", *patch.Email, "")
	}
	if patch.OrderID != nil {
		set("order_id", *patch.OrderID, "")
	}
	if patch.Status != nil {
		set("status", string(*patch.Status), "")
	}
	if patch.IsRedeemed != nil {
		set("is_redeemed", *patch.IsRedeemed, "")
	}
	if patch.LoginInfo != nil {
		set("login_info", *patch.LoginInfo, "")
	}
	if patch.Processing != nil {
		encoded, err := patch.Processing.Encode()
		if err != nil {
			return nil, err
		}
		set("processing_step", encoded, "::text::jsonb")
	}
	if patch.Completed != nil {
		encoded, err := patch.Completed.Encode()
		if err != nil {
			return nil, err
		}
		set("completed_step", encoded, "::text::jsonb")
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	set("updated_at", updatedAt, "")

	args = append(args, key)
	where := fmt.Sprintf("%s = $%d", keyColumn, len(args))
	if patch.UnlessRedeemed {
		where += " AND NOT is_redeemed"
	}
	if len(patch.UnlessStatus) > 0 {
		statuses := make([]string, 0, len(patch.UnlessStatus))
		for _, s := range patch.UnlessStatus {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		where += fmt.Sprintf(" AND status <> ALL($%d::text[])", len(args))
	}

	query := fmt.Sprintf(`
		UPDATE orders
		SET %s
		WHERE %s
		RETURNING %s`, strings.Join(sets, ", "), where, orderColumns)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed updating order %w", err)
	}

	rec, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[types.OrderRecord])
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed updating order %w", err)
	}

	if _, err := d.findOne(ctx, keyColumn, key); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w", store.ErrConditionFailed)
}

func (d *Database) DeleteOrders(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		DELETE FROM orders
		WHERE id = ANY($1::text[])`

	tag, err := d.pool.Exec(ctx, query, ids)
	if err != nil {
		return 0, fmt.Errorf("failed deleting orders %w", err)
	}
	return tag.RowsAffected(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func encodeStep(step types.Step) (*string, error) {
	if step.Status == "" {
		return nil, nil
	}
	encoded, err := step.Encode()
	if err != nil {
		return nil, err
	}
	return &encoded, nil
}
