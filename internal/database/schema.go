package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order at startup.  Every statement is idempotent.
//
// reservations.active_key is 1 for REQUESTED/ACCEPTED rows and NULL
// otherwise.  MySQL unique indexes ignore NULLs, so the unique key on
// (trip_id, student_id, active_key) allows any number of finished
// reservations but only one active one per student and trip.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    email         VARCHAR(255)    NOT NULL,
    password_hash VARCHAR(255)    NOT NULL,
    role          ENUM('STUDENT','DRIVER','ADMIN') NOT NULL DEFAULT 'STUDENT',
    full_name     VARCHAR(120)    NOT NULL DEFAULT '',
    phone         VARCHAR(32)     NULL,
    vehicle_info  VARCHAR(255)    NULL,
    home_lat      DOUBLE          NULL,
    home_lon      DOUBLE          NULL,
    is_active     TINYINT(1)      NOT NULL DEFAULT 1,
    created_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uq_users_email (email)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
    id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    user_id    BIGINT UNSIGNED NOT NULL,
    token_hash CHAR(64)        NOT NULL,
    expires_at DATETIME        NOT NULL,
    revoked_at DATETIME        NULL,
    created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uq_refresh_token_hash (token_hash),
    KEY idx_refresh_user (user_id),
    CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS trips (
    id              BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    driver_id       BIGINT UNSIGNED NOT NULL,
    origin_lat      DOUBLE          NOT NULL,
    origin_lon      DOUBLE          NOT NULL,
    dest_lat        DOUBLE          NOT NULL,
    dest_lon        DOUBLE          NOT NULL,
    departure_time  DATETIME        NOT NULL,
    total_seats     INT             NOT NULL,
    available_seats INT             NOT NULL,
    status          ENUM('PLANNED','IN_PROGRESS','COMPLETED','CANCELLED') NOT NULL DEFAULT 'PLANNED',
    created_at      DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_trips_driver (driver_id),
    KEY idx_trips_status_departure (status, departure_time),
    CONSTRAINT chk_trips_total_seats CHECK (total_seats > 0),
    CONSTRAINT fk_trips_driver FOREIGN KEY (driver_id) REFERENCES users (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservations (
    id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    trip_id    BIGINT UNSIGNED NOT NULL,
    student_id BIGINT UNSIGNED NOT NULL,
    pickup_lat DOUBLE          NULL,
    pickup_lon DOUBLE          NULL,
    status     ENUM('REQUESTED','ACCEPTED','REJECTED','CANCELLED') NOT NULL DEFAULT 'REQUESTED',
    active_key TINYINT GENERATED ALWAYS AS (IF(status IN ('REQUESTED','ACCEPTED'), 1, NULL)) VIRTUAL,
    created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uq_reservations_active (trip_id, student_id, active_key),
    KEY idx_reservations_student (student_id),
    CONSTRAINT fk_reservations_trip FOREIGN KEY (trip_id) REFERENCES trips (id),
    CONSTRAINT fk_reservations_student FOREIGN KEY (student_id) REFERENCES users (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
