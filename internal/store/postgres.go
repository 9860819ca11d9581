package store

import (
	"context"
	"fmt"
	"time"

	"github.com/example/reservationd/internal/db"
	"github.com/example/reservationd/internal/reservation"
)

// slotConstraint is the partial unique index that arbitrates concurrent claims
// on the same slot. See migrate/0001_init.sql.
const slotConstraint = "reservations_slot_key"

const columns = `id,restaurant_id,user_id,table_id,reservation_time,party_size,special_requests,status,created_at,updated_at`

// Postgres is the pgx-backed reservation store.
type Postgres struct{ db *db.DB }

func NewPostgres(d *db.DB) *Postgres { return &Postgres{db: d} }

func scanReservation(row db.Row) (reservation.Reservation, error) {
	var r reservation.Reservation
	var status string
	err := row.Scan(&r.ID, &r.RestaurantID, &r.UserID, &r.TableID, &r.ReservationTime, &r.PartySize,
		&r.SpecialRequests, &status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return reservation.Reservation{}, err
	}
	r.Status = reservation.Status(status)
	return r, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return reservation.ErrNotFound
	case db.IsUniqueViolation(err, slotConstraint):
		return reservation.ErrSlotConflict
	}
	return db.WrapNotFound(err)
}

func (p *Postgres) Create(ctx context.Context, r reservation.Reservation) (reservation.Reservation, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	row := p.db.QueryRow(ctx, `
INSERT INTO reservations(restaurant_id,user_id,table_id,reservation_time,party_size,special_requests,status,created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING `+columns,
		r.RestaurantID, r.UserID, r.TableID, r.ReservationTime, r.PartySize, r.SpecialRequests, string(r.Status), r.CreatedAt,
	)
	saved, err := scanReservation(row)
	if err != nil {
		return reservation.Reservation{}, translate(err)
	}
	return saved, nil
}

func (p *Postgres) Get(ctx context.Context, id int64) (reservation.Reservation, error) {
	r, err := scanReservation(p.db.QueryRow(ctx, `SELECT `+columns+` FROM reservations WHERE id=$1`, id))
	if err != nil {
		return reservation.Reservation{}, translate(err)
	}
	return r, nil
}

func (p *Postgres) Mutate(ctx context.Context, id int64, fn func(r *reservation.Reservation) error) (reservation.Reservation, error) {
	var out reservation.Reservation
	err := p.db.WithTx(ctx, func(tx db.Tx) error {
		cur, err := scanReservation(tx.QueryRow(ctx, `SELECT `+columns+` FROM reservations WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return translate(err)
		}
		if err := fn(&cur); err != nil {
			return err
		}
		out, err = scanReservation(tx.QueryRow(ctx, `
UPDATE reservations
SET table_id=$2, reservation_time=$3, party_size=$4, special_requests=$5, status=$6, updated_at=$7
WHERE id=$1
RETURNING `+columns,
			id, cur.TableID, cur.ReservationTime, cur.PartySize, cur.SpecialRequests, string(cur.Status), cur.UpdatedAt,
		))
		return translate(err)
	})
	if err != nil {
		return reservation.Reservation{}, err
	}
	return out, nil
}

func (p *Postgres) list(ctx context.Context, sql string, args ...any) ([]reservation.Reservation, error) {
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	defer rows.Close()

	out := []reservation.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ListByUser(ctx context.Context, userID string) ([]reservation.Reservation, error) {
	return p.list(ctx, `SELECT `+columns+` FROM reservations WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (p *Postgres) ListByRestaurant(ctx context.Context, restaurantID string) ([]reservation.Reservation, error) {
	return p.list(ctx, `SELECT `+columns+` FROM reservations WHERE restaurant_id=$1 ORDER BY reservation_time ASC`, restaurantID)
}

func (p *Postgres) ListByStatus(ctx context.Context, restaurantID string, status reservation.Status) ([]reservation.Reservation, error) {
	return p.list(ctx, `
SELECT `+columns+` FROM reservations
WHERE restaurant_id=$1 AND status=$2
ORDER BY reservation_time ASC`, restaurantID, string(status))
}

func (p *Postgres) ListByTimeRange(ctx context.Context, restaurantID string, from, to time.Time) ([]reservation.Reservation, error) {
	return p.list(ctx, `
SELECT `+columns+` FROM reservations
WHERE restaurant_id=$1 AND reservation_time BETWEEN $2 AND $3
ORDER BY reservation_time ASC`, restaurantID, from, to)
}

func (p *Postgres) SlotHeld(ctx context.Context, restaurantID, tableID string, at time.Time, excludeID int64) (bool, error) {
	var held bool
	err := p.db.QueryRow(ctx, `
SELECT EXISTS(
  SELECT 1 FROM reservations
  WHERE restaurant_id=$1 AND table_id=$2 AND reservation_time=$3
    AND status NOT IN ('CANCELLED','NO_SHOW')
    AND id <> $4
)`, restaurantID, tableID, at, excludeID).Scan(&held)
	return held, db.WrapNotFound(err)
}

func (p *Postgres) CountActive(ctx context.Context, restaurantID string, at time.Time, excludeID int64) (int, error) {
	var n int
	err := p.db.QueryRow(ctx, `
SELECT COUNT(*) FROM reservations
WHERE restaurant_id=$1 AND reservation_time=$2
  AND status NOT IN ('CANCELLED','NO_SHOW')
  AND id <> $3`, restaurantID, at, excludeID).Scan(&n)
	return n, db.WrapNotFound(err)
}

func (p *Postgres) OccupiedTableIDs(ctx context.Context, restaurantID string, at time.Time) ([]string, error) {
	rows, err := p.db.Query(ctx, `
SELECT DISTINCT table_id FROM reservations
WHERE restaurant_id=$1 AND reservation_time=$2
  AND status NOT IN ('CANCELLED','NO_SHOW')`, restaurantID, at)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) ExpiredPending(ctx context.Context, cutoff time.Time) ([]reservation.Reservation, error) {
	return p.list(ctx, `
SELECT `+columns+` FROM reservations
WHERE status='PENDING' AND created_at < $1
ORDER BY created_at ASC`, cutoff)
}

var _ reservation.Store = (*Postgres)(nil)
