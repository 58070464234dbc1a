package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/models"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/pricing"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool    *pgxpool.Pool
	pricing *pricing.Engine
}

type Options struct {
	Pricing *pricing.Engine
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	engine := options.Pricing
	if engine == nil {
		engine = pricing.NewEngine(nil)
	}
	return &Store{pool: pool, pricing: engine}
}

func (s *Store) CheckIn(ctx context.Context, input store.CheckInInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Serializes concurrent check-ins for the same plate; the partial unique
	// index on open tickets is the backstop.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, input.Plate); err != nil {
		return models.Ticket{}, err
	}

	vehicleClass, err := resolveVehicle(ctx, tx, input.Plate, input.VehicleClass, input.EntryAt)
	if err != nil {
		return models.Ticket{}, err
	}

	var parked bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM tickets WHERE plate = $1 AND exit_at IS NULL)
	`, input.Plate)
	if err = row.Scan(&parked); err != nil {
		return models.Ticket{}, err
	}
	if parked {
		err = store.ErrVehicleParked
		return models.Ticket{}, err
	}

	slot, floor, err := allocateSlot(ctx, tx, vehicleClass, input.Accessible)
	if err != nil {
		return models.Ticket{}, err
	}

	entryAt := input.EntryAt
	if entryAt.IsZero() {
		entryAt = time.Now().UTC()
	}

	ticket := models.Ticket{
		Plate:        input.Plate,
		VehicleClass: vehicleClass,
		SlotID:       slot.SlotID,
		SlotNumber:   slot.SlotNumber,
		LevelFloor:   floor,
		Status:       models.StatusOpen,
		EntryAt:      entryAt,
	}
	row = tx.QueryRow(ctx, `
		INSERT INTO tickets (plate, slot_id, slot_number, level_floor, entry_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ticket_id
	`, ticket.Plate, ticket.SlotID, ticket.SlotNumber, ticket.LevelFloor, ticket.EntryAt)
	if err = row.Scan(&ticket.TicketID); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func resolveVehicle(ctx context.Context, tx pgx.Tx, plate, claimedClass string, at time.Time) (string, error) {
	var storedClass string
	row := tx.QueryRow(ctx, `SELECT class FROM vehicles WHERE plate = $1`, plate)
	err := row.Scan(&storedClass)
	if errors.Is(err, pgx.ErrNoRows) {
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO vehicles (plate, class, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (plate) DO NOTHING
		`, plate, claimedClass, at); err != nil {
			return "", err
		}
		row = tx.QueryRow(ctx, `SELECT class FROM vehicles WHERE plate = $1`, plate)
		err = row.Scan(&storedClass)
	}
	if err != nil {
		return "", err
	}
	if storedClass != claimedClass {
		return "", store.ErrClassMismatch
	}
	return storedClass, nil
}

// allocateSlot claims the first free slot walking the accessible class (when
// requested) and then the vehicle class's compatibility list. Rows locked by
// concurrent check-ins are skipped rather than waited on.
func allocateSlot(ctx context.Context, tx pgx.Tx, vehicleClass string, accessible bool) (models.Slot, int, error) {
	var classes []string
	if accessible {
		classes = append(classes, models.SlotAccessible)
	}
	compatible, ok := store.CompatibleSlotClasses(vehicleClass)
	if !ok && !accessible {
		return models.Slot{}, 0, store.ErrNoAvailableSlot
	}
	classes = append(classes, compatible...)

	for _, class := range classes {
		slot, floor, err := claimSlot(ctx, tx, class)
		if err == nil {
			return slot, floor, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.Slot{}, 0, err
		}
	}
	return models.Slot{}, 0, store.ErrNoAvailableSlot
}

func claimSlot(ctx context.Context, tx pgx.Tx, slotClass string) (models.Slot, int, error) {
	var slot models.Slot
	var floor int
	row := tx.QueryRow(ctx, `
		WITH candidate AS (
			SELECT s.slot_id, l.floor_number
			FROM slots s
			JOIN levels l ON l.level_id = s.level_id
			WHERE s.available = TRUE AND s.class = $1
			ORDER BY l.floor_number ASC, s.slot_number ASC
			FOR UPDATE OF s SKIP LOCKED
			LIMIT 1
		)
		UPDATE slots
		SET available = FALSE
		FROM candidate
		WHERE slots.slot_id = candidate.slot_id
		RETURNING slots.slot_id, slots.level_id, slots.slot_number, slots.class, candidate.floor_number
	`, slotClass)
	if err := row.Scan(&slot.SlotID, &slot.LevelID, &slot.SlotNumber, &slot.Class, &floor); err != nil {
		return models.Slot{}, 0, err
	}
	slot.Available = false
	return slot, floor, nil
}

func (s *Store) CheckOut(ctx context.Context, input store.CheckOutInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ticket models.Ticket
	var exitAtNull sql.NullTime
	var feeNull sql.NullInt64
	row := tx.QueryRow(ctx, `
		SELECT t.ticket_id, t.plate, v.class, t.slot_id, t.slot_number, t.level_floor, t.entry_at, t.exit_at, t.fee_cents
		FROM tickets t
		JOIN vehicles v ON v.plate = t.plate
		WHERE t.ticket_id = $1
		FOR UPDATE OF t
	`, input.TicketID)
	if err = row.Scan(&ticket.TicketID, &ticket.Plate, &ticket.VehicleClass, &ticket.SlotID, &ticket.SlotNumber, &ticket.LevelFloor, &ticket.EntryAt, &exitAtNull, &feeNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if exitAtNull.Valid {
		err = store.ErrTicketClosed
		return models.Ticket{}, err
	}

	exitAt := input.ExitAt
	if exitAt.IsZero() {
		exitAt = time.Now().UTC()
	}
	fee, err := s.pricing.Fee(ticket.VehicleClass, ticket.EntryAt, exitAt)
	if err != nil {
		return models.Ticket{}, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE tickets
		SET exit_at = $1, fee_cents = $2
		WHERE ticket_id = $3
	`, exitAt, fee, ticket.TicketID); err != nil {
		return models.Ticket{}, err
	}
	if _, err = tx.Exec(ctx, `
		UPDATE slots
		SET available = TRUE
		WHERE slot_id = $1
	`, ticket.SlotID); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	ticket.Status = models.StatusClosed
	ticket.ExitAt = &exitAt
	ticket.FeeCents = &fee
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID int64) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT t.ticket_id, t.plate, v.class, t.slot_id, t.slot_number, t.level_floor, t.entry_at, t.exit_at, t.fee_cents
		FROM tickets t
		JOIN vehicles v ON v.plate = t.plate
		WHERE t.ticket_id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, err
}

func (s *Store) ListActive(ctx context.Context) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.ticket_id, t.plate, v.class, t.slot_id, t.slot_number, t.level_floor, t.entry_at, t.exit_at, t.fee_cents
		FROM tickets t
		JOIN vehicles v ON v.plate = t.plate
		WHERE t.exit_at IS NULL
		ORDER BY t.entry_at ASC, t.ticket_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var exitAtNull sql.NullTime
	var feeNull sql.NullInt64
	if err := row.Scan(&ticket.TicketID, &ticket.Plate, &ticket.VehicleClass, &ticket.SlotID, &ticket.SlotNumber, &ticket.LevelFloor, &ticket.EntryAt, &exitAtNull, &feeNull); err != nil {
		return models.Ticket{}, err
	}
	ticket.Status = models.StatusOpen
	if exitAtNull.Valid {
		ticket.Status = models.StatusClosed
		exit := exitAtNull.Time
		ticket.ExitAt = &exit
	}
	if feeNull.Valid {
		fee := feeNull.Int64
		ticket.FeeCents = &fee
	}
	return ticket, nil
}

func (s *Store) CreateLot(ctx context.Context, name string) (models.Lot, error) {
	lot := models.Lot{Name: name}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO lots (name)
		VALUES ($1)
		RETURNING lot_id
	`, name)
	if err := row.Scan(&lot.LotID); err != nil {
		return models.Lot{}, err
	}
	return lot, nil
}

func (s *Store) ListLots(ctx context.Context) ([]models.Lot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT lot_id, name
		FROM lots
		ORDER BY lot_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []models.Lot
	for rows.Next() {
		var lot models.Lot
		if err := rows.Scan(&lot.LotID, &lot.Name); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func (s *Store) DeleteLot(ctx context.Context, lotID int64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	row := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lots WHERE lot_id = $1)`, lotID)
	if err = row.Scan(&exists); err != nil {
		return err
	}
	if !exists {
		err = store.ErrLotNotFound
		return err
	}

	var occupied bool
	row = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM tickets t
			JOIN slots s ON s.slot_id = t.slot_id
			JOIN levels l ON l.level_id = s.level_id
			WHERE l.lot_id = $1 AND t.exit_at IS NULL
		)
	`, lotID)
	if err = row.Scan(&occupied); err != nil {
		return err
	}
	if occupied {
		err = store.ErrOccupied
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM lots WHERE lot_id = $1`, lotID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) AddLevel(ctx context.Context, lotID int64, floorNumber int) (models.Level, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lots WHERE lot_id = $1)`, lotID)
	if err := row.Scan(&exists); err != nil {
		return models.Level{}, err
	}
	if !exists {
		return models.Level{}, store.ErrLotNotFound
	}

	level := models.Level{LotID: lotID, FloorNumber: floorNumber}
	row = s.pool.QueryRow(ctx, `
		INSERT INTO levels (lot_id, floor_number)
		VALUES ($1, $2)
		RETURNING level_id
	`, lotID, floorNumber)
	if err := row.Scan(&level.LevelID); err != nil {
		return models.Level{}, err
	}
	return level, nil
}

func (s *Store) DeleteLevel(ctx context.Context, levelID int64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	row := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM levels WHERE level_id = $1)`, levelID)
	if err = row.Scan(&exists); err != nil {
		return err
	}
	if !exists {
		err = store.ErrLevelNotFound
		return err
	}

	var occupied bool
	row = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM tickets t
			JOIN slots s ON s.slot_id = t.slot_id
			WHERE s.level_id = $1 AND t.exit_at IS NULL
		)
	`, levelID)
	if err = row.Scan(&occupied); err != nil {
		return err
	}
	if occupied {
		err = store.ErrOccupied
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM levels WHERE level_id = $1`, levelID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) AddSlot(ctx context.Context, levelID int64, slotNumber, slotClass string) (models.Slot, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM levels WHERE level_id = $1)`, levelID)
	if err := row.Scan(&exists); err != nil {
		return models.Slot{}, err
	}
	if !exists {
		return models.Slot{}, store.ErrLevelNotFound
	}

	slot := models.Slot{LevelID: levelID, SlotNumber: slotNumber, Class: slotClass, Available: true}
	row = s.pool.QueryRow(ctx, `
		INSERT INTO slots (level_id, slot_number, class, available)
		VALUES ($1, $2, $3, TRUE)
		RETURNING slot_id
	`, levelID, slotNumber, slotClass)
	if err := row.Scan(&slot.SlotID); err != nil {
		return models.Slot{}, err
	}
	return slot, nil
}

func (s *Store) ListSlots(ctx context.Context, levelID int64) ([]models.Slot, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM levels WHERE level_id = $1)`, levelID)
	if err := row.Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrLevelNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT slot_id, level_id, slot_number, class, available
		FROM slots
		WHERE level_id = $1
		ORDER BY slot_number ASC
	`, levelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		var slot models.Slot
		if err := rows.Scan(&slot.SlotID, &slot.LevelID, &slot.SlotNumber, &slot.Class, &slot.Available); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *Store) DeleteSlot(ctx context.Context, slotID int64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var id int64
	row := tx.QueryRow(ctx, `SELECT slot_id FROM slots WHERE slot_id = $1 FOR UPDATE`, slotID)
	if err = row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrSlotNotFound
		}
		return err
	}

	var occupied bool
	row = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM tickets WHERE slot_id = $1 AND exit_at IS NULL)
	`, slotID)
	if err = row.Scan(&occupied); err != nil {
		return err
	}
	if occupied {
		err = store.ErrOccupied
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM slots WHERE slot_id = $1`, slotID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) SetSlotAvailability(ctx context.Context, slotID int64, available bool) (models.Slot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Slot{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var slot models.Slot
	row := tx.QueryRow(ctx, `
		SELECT slot_id, level_id, slot_number, class, available
		FROM slots
		WHERE slot_id = $1
		FOR UPDATE
	`, slotID)
	if err = row.Scan(&slot.SlotID, &slot.LevelID, &slot.SlotNumber, &slot.Class, &slot.Available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrSlotNotFound
		}
		return models.Slot{}, err
	}

	if !available {
		var occupied bool
		row = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM tickets WHERE slot_id = $1 AND exit_at IS NULL)
		`, slotID)
		if err = row.Scan(&occupied); err != nil {
			return models.Slot{}, err
		}
		if occupied {
			err = store.ErrOccupied
			return models.Slot{}, err
		}
	}

	if _, err = tx.Exec(ctx, `
		UPDATE slots
		SET available = $1
		WHERE slot_id = $2
	`, available, slotID); err != nil {
		return models.Slot{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Slot{}, err
	}
	slot.Available = available
	return slot, nil
}
