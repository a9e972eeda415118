package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order.  Every statement is idempotent.
//
// booking_seats carries a unique (trip_id, seat_id) key: a seat can be in
// at most one booking, and bookings are never cancelled.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS trips (
		id             VARCHAR(64)  NOT NULL PRIMARY KEY,
		route          VARCHAR(255) NOT NULL,
		fare_per_seat  BIGINT       NOT NULL,
		total_seats    INT          NOT NULL,
		departs_at     DATETIME(6)  NOT NULL,
		arrives_at     DATETIME(6)  NOT NULL,
		capacity_class VARCHAR(32)  NOT NULL DEFAULT 'STANDARD'
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS trip_seats (
		trip_id         VARCHAR(64)  NOT NULL,
		seat_id         VARCHAR(16)  NOT NULL,
		row_idx         INT          NOT NULL,
		col_idx         INT          NOT NULL,
		status          ENUM('available','held','booked') NOT NULL DEFAULT 'available',
		holder_id       VARCHAR(128) NULL,
		hold_expires_at DATETIME(6)  NULL,
		version         BIGINT UNSIGNED NOT NULL DEFAULT 1,
		updated_at      DATETIME(6)  NOT NULL,
		PRIMARY KEY (trip_id, seat_id),
		KEY idx_trip_seats_expiry (status, hold_expires_at),
		CONSTRAINT fk_trip_seats_trip FOREIGN KEY (trip_id) REFERENCES trips (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           CHAR(36)     NOT NULL PRIMARY KEY,
		reference    VARCHAR(16)  NOT NULL,
		holder_id    VARCHAR(128) NOT NULL,
		trip_id      VARCHAR(64)  NOT NULL,
		total_amount BIGINT       NOT NULL,
		status       ENUM('confirmed','cancelled') NOT NULL,
		payment_ref  VARCHAR(128) NULL,
		created_at   DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_bookings_reference (reference),
		KEY idx_bookings_holder (holder_id, created_at),
		CONSTRAINT fk_bookings_trip FOREIGN KEY (trip_id) REFERENCES trips (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_seats (
		booking_id CHAR(36)    NOT NULL,
		trip_id    VARCHAR(64) NOT NULL,
		seat_id    VARCHAR(16) NOT NULL,
		pos        INT         NOT NULL,
		PRIMARY KEY (booking_id, seat_id),
		UNIQUE KEY uq_booking_seats_seat (trip_id, seat_id),
		CONSTRAINT fk_booking_seats_booking FOREIGN KEY (booking_id) REFERENCES bookings (id) ON DELETE CASCADE,
		CONSTRAINT fk_booking_seats_seat FOREIGN KEY (trip_id, seat_id) REFERENCES trip_seats (trip_id, seat_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
