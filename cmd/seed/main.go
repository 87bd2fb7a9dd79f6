// Command seed loads demo users and one bookable trip into an empty
// database.  Running it twice is harmless: existing emails are skipped.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/config"
	"github.com/puce-ride/appride/internal/database"
	"github.com/puce-ride/appride/internal/model"
	"github.com/puce-ride/appride/internal/repository"
)

const demoPassword = "123456"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := log.New("seed")

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepo(db)
	vehicle := "Chevrolet Spark, PBA-1234"
	demo := []model.User{
		{Email: "admin@appride.com", Role: model.RoleAdmin, FullName: "Admin AppRide"},
		{Email: "driver@appride.com", Role: model.RoleDriver, FullName: "Carla Conductora", VehicleInfo: &vehicle},
		{Email: "student@appride.com", Role: model.RoleStudent, FullName: "Esteban Estudiante"},
	}
	var driverID uint64
	for i := range demo {
		u := demo[i]
		id, err := users.Create(ctx, &u, demoPassword, cfg.BcryptCost)
		switch {
		case errors.Is(err, apperrors.ErrConflict):
			existing, getErr := users.GetByEmail(ctx, u.Email)
			if getErr != nil {
				logger.Fatalf("load %s: %v", u.Email, getErr)
			}
			id = existing.ID
			logger.Infof("%s already present (id=%d)", u.Email, id)
		case err != nil:
			logger.Fatalf("create %s: %v", u.Email, err)
		default:
			logger.Infof("created %s (id=%d)", u.Email, id)
		}
		if u.Role == model.RoleDriver {
			driverID = id
		}
	}

	store := repository.NewStore(db)
	existing, err := store.ListTrips(ctx, model.TripFilter{DriverID: driverID, Limit: 1})
	if err != nil {
		logger.Fatalf("list trips: %v", err)
	}
	if len(existing) > 0 {
		logger.Infof("driver already has trip %d, skipping", existing[0].ID)
		return
	}

	// PUCE main campus to the north of Quito, tomorrow at 07:00 local (UTC-5).
	trip := &model.Trip{
		DriverID:       driverID,
		OriginLat:      -0.2096,
		OriginLon:      -78.4913,
		DestLat:        -0.1353,
		DestLon:        -78.4771,
		DepartureTime:  time.Now().UTC().Truncate(24 * time.Hour).Add(36 * time.Hour),
		TotalSeats:     3,
		AvailableSeats: 3,
		Status:         model.TripPlanned,
	}
	if err := store.CreateTrip(ctx, trip); err != nil {
		logger.Fatalf("create trip: %v", err)
	}
	logger.Infof("created trip %d with %d seats", trip.ID, trip.TotalSeats)
}
