// seed-admin creates or updates the bootstrap Admin user.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME_2=... \
//	ADMIN_PASSWORD=... go run ./cmd/seed-admin -username admin -print-token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
)

func main() {
	username := flag.String("username", "admin", "admin username")
	name := flag.String("name", "Warehouse Admin", "display name")
	email := flag.String("email", "", "optional email")
	printToken := flag.Bool("print-token", false, "print a bearer token for the admin after seeding")
	flag.Parse()

	password := os.Getenv("ADMIN_PASSWORD")
	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "ADMIN_PASSWORD must be set (at least 8 characters)")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	// Redis is optional here; without it the user cache is simply not touched.
	if strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != "" {
		config.ConnectRedisWithRetry()
	}
	models.MigrateTable()

	role := models.UserRoleAdmin
	existing, err := models.GetUserByUsername(ctx, *username)
	switch {
	case errors.Is(err, models.ErrReferenceNotFound):
		u, err := models.CreateUser(ctx, &models.NewUser{
			Username: *username,
			Name:     *name,
			Email:    *email,
			Password: password,
			Role:     role,
			IsActive: utils.NewTrue(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q id=%d\n", u.Username, u.ID)
	case err != nil:
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	default:
		input := &models.UpdateUserInput{
			Name:     name,
			Password: &password,
			Role:     &role,
			IsActive: utils.NewTrue(),
		}
		if *email != "" {
			input.Email = email
		}
		if _, err := models.UpdateUser(ctx, existing.ID, input); err != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated admin user: username=%q id=%d\n", existing.Username, existing.ID)
	}

	if *printToken {
		u, err := models.CheckUserPassword(ctx, *username, password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seeded user cannot sign in: %v\n", err)
			os.Exit(1)
		}
		token, err := utils.JwtGenerate(u.ID, u.Username, string(u.Role))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
	}
}
