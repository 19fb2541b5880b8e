package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	numericOutOfRange   = "22003"
	openCartIndex       = "orders_one_open_cart_per_user"
)

const selectOrdersWithItems = `
	SELECT o.id, o.user_id, o.is_cart, o.created_at, o.updated_at,
	       li.id, li.product_id, li.quantity, li.price, li.created_at, li.updated_at
	FROM orders o
	LEFT JOIN line_items li ON li.order_id = o.id`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	slog.Info("connected to postgres", "host", cred.Host, "db", cred.DBName)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "cart_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) FindCart(ctx context.Context, userID uuid.UUID) (*domain.Order, error) {
	orders, err := queryOrders(ctx, r.db,
		selectOrdersWithItems+` WHERE o.user_id = $1 AND o.is_cart ORDER BY li.created_at, li.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query cart by user id: %w", err)
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return orders[0], nil
}

func (r *Repository) CreateCart(ctx context.Context, userID uuid.UUID) (*domain.Order, error) {
	id := uuid.New()
	query := `INSERT INTO orders (id, user_id, is_cart, created_at, updated_at)
	          VALUES ($1, $2, TRUE, NOW(), NOW())`

	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			if pqErr.Code == uniqueViolation && pqErr.Constraint == openCartIndex {
				return nil, ErrDuplicateCart
			}
			if pqErr.Code == foreignKeyViolation {
				return nil, ErrUserNotFound
			}
		}
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	return r.GetOrder(ctx, id)
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	orders, err := queryOrders(ctx, r.db,
		selectOrdersWithItems+` WHERE o.id = $1 ORDER BY li.created_at, li.id`,
		id)
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return orders[0], nil
}

func (r *Repository) AddLineItem(ctx context.Context, orderID uuid.UUID, product *domain.Product, quantity int) (*domain.LineItem, error) {
	// The snapshot price is only written on insert; a merge keeps the old one.
	query := `INSERT INTO line_items (id, order_id, product_id, quantity, price, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	          ON CONFLICT (order_id, product_id)
	          DO UPDATE SET quantity = line_items.quantity + EXCLUDED.quantity, updated_at = NOW()
	          RETURNING id, order_id, product_id, quantity, price, created_at, updated_at`

	var item domain.LineItem
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockOpenOrder(ctx, tx, orderID); err != nil {
			return err
		}

		err := tx.QueryRowContext(ctx, query, uuid.New(), orderID, product.ID, quantity, product.Price).Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == numericOutOfRange {
				return ErrQuantityOutOfRange
			}
			return fmt.Errorf("upsert line item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &item, nil
}

func (r *Repository) RemoveLineItem(ctx context.Context, orderID uuid.UUID, productID int64, quantity int) (int, error) {
	var remaining int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockOpenOrder(ctx, tx, orderID); err != nil {
			return err
		}

		var item domain.LineItem
		err := tx.QueryRowContext(ctx,
			`SELECT id, quantity FROM line_items WHERE order_id = $1 AND product_id = $2 FOR UPDATE`,
			orderID, productID,
		).Scan(&item.ID, &item.Quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLineItemNotFound
		}
		if err != nil {
			return fmt.Errorf("lock line item: %w", err)
		}

		left, empty := item.Remove(quantity)
		if empty {
			if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE id = $1`, item.ID); err != nil {
				return fmt.Errorf("delete line item: %w", err)
			}
			remaining = 0
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE line_items SET quantity = $2, updated_at = NOW() WHERE id = $1`,
			item.ID, left,
		); err != nil {
			return fmt.Errorf("update line item quantity: %w", err)
		}
		remaining = left
		return nil
	})
	if err != nil {
		return 0, err
	}

	return remaining, nil
}

func (r *Repository) CloseCart(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var closedAt time.Time
		err := tx.QueryRowContext(ctx,
			`UPDATE orders SET is_cart = FALSE, updated_at = NOW() WHERE id = $1 AND is_cart RETURNING updated_at`,
			orderID,
		).Scan(&closedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderClosed
		}
		if err != nil {
			return fmt.Errorf("close cart: %w", err)
		}

		orders, err := queryOrders(ctx, tx,
			selectOrdersWithItems+` WHERE o.id = $1 ORDER BY li.created_at, li.id`,
			orderID)
		if err != nil {
			return fmt.Errorf("query closed order: %w", err)
		}
		if len(orders) == 0 {
			return ErrOrderNotFound
		}
		order = orders[0]

		payload, err := json.Marshal(domain.NewOrderPlacedEvent(order, closedAt))
		if err != nil {
			return fmt.Errorf("failed to marshal order placed payload: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, NOW())`,
			order.ID, domain.EventTypeOrderPlaced, payload,
		); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *Repository) ListClosedOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	orders, err := queryOrders(ctx, r.db,
		selectOrdersWithItems+` WHERE o.user_id = $1 AND NOT o.is_cart ORDER BY o.created_at, o.id, li.created_at, li.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query closed orders by user id: %w", err)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return orders, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events
	          WHERE processed_at IS NULL
	          ORDER BY id
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateId, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event as processed: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// lockOpenOrder takes a share lock on the order so that a concurrent
// checkout cannot close it while a line item is being written.
func lockOpenOrder(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error {
	var isCart bool
	err := tx.QueryRowContext(ctx, `SELECT is_cart FROM orders WHERE id = $1 FOR SHARE`, orderID).Scan(&isCart)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("lock order: %w", err)
	}
	if !isCart {
		return ErrOrderClosed
	}
	return nil
}

func queryOrders(ctx context.Context, q querier, query string, args ...any) ([]*domain.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	byID := make(map[uuid.UUID]*domain.Order)
	for rows.Next() {
		var (
			o             domain.Order
			itemID        uuid.NullUUID
			productID     sql.NullInt64
			quantity      sql.NullInt64
			price         decimal.NullDecimal
			itemCreatedAt sql.NullTime
			itemUpdatedAt sql.NullTime
		)
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.IsCart,
			&o.CreatedAt,
			&o.UpdatedAt,
			&itemID,
			&productID,
			&quantity,
			&price,
			&itemCreatedAt,
			&itemUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		order, ok := byID[o.ID]
		if !ok {
			order = &o
			order.LineItems = []domain.LineItem{}
			byID[o.ID] = order
			orders = append(orders, order)
		}

		if itemID.Valid {
			order.LineItems = append(order.LineItems, domain.LineItem{
				ID:        itemID.UUID,
				OrderID:   order.ID,
				ProductID: productID.Int64,
				Quantity:  int(quantity.Int64),
				Price:     price.Decimal,
				CreatedAt: itemCreatedAt.Time,
				UpdatedAt: itemUpdatedAt.Time,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}
