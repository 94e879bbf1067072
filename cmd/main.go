// Command cmd migrates the database and seeds staff accounts for local runs.
package main

import (
	"callcenter/internal/auth"
	"callcenter/internal/config"
	"callcenter/internal/models"
	"callcenter/internal/storage"
)

var seedUsers = []models.User{
	{Name: "Admin", Surname: "User", Email: "admin@callcenter.local", Role: models.RoleAdmin},
	{Name: "Aziz", Surname: "Karimov", Email: "aziz@callcenter.local", Role: models.RoleRepresentative, Skills: "billing,general"},
	{Name: "Malika", Surname: "Rahimova", Email: "malika@callcenter.local", Role: models.RoleRepresentative, Skills: "tech"},
	{Name: "Test", Surname: "Customer", Email: "customer@callcenter.local", Role: models.RoleCustomer},
}

func main() {
	envErr := config.LoadEnv()
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogPretty)
	if envErr != nil {
		logger.Fatal().Err(envErr).Msg("failed to read .env")
	}

	db, err := storage.ConnectDatabase(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("database unavailable")
	}
	if err := storage.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	for _, u := range seedUsers {
		user := u
		if err := db.Where(models.User{Email: u.Email}).FirstOrCreate(&user).Error; err != nil {
			logger.Fatal().Err(err).Str("email", u.Email).Msg("seed failed")
		}
		ev := logger.Info().Uint("id", user.ID).Str("email", user.Email).Str("role", user.Role)
		if len(cfg.JWTSecret) > 0 {
			token, err := auth.IssueToken(cfg.JWTSecret, user.ID, user.Role)
			if err != nil {
				logger.Fatal().Err(err).Msg("token signing failed")
			}
			ev = ev.Str("token", token)
		}
		ev.Msg("seeded user")
	}
}
