package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/quizmasterhq/quizmaster/internal/config"
	"github.com/quizmasterhq/quizmaster/internal/database"
	"github.com/quizmasterhq/quizmaster/internal/logger"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/quizmasterhq/quizmaster/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// create-user provisions an account from the terminal, optionally with a
// role pre-assigned so the user skips onboarding.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New User ===")

	// Name
	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	// Email
	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	// Password
	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// Role
	fmt.Print("Enter Role (teacher/student, empty to decide later): ")
	roleStr, _ := reader.ReadString('\n')
	role := model.Role(strings.TrimSpace(roleStr))
	if role != model.RoleUnset && !role.Valid() {
		fmt.Println("Error: Role must be teacher, student, or empty")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hashedPassword),
		Role:         role,
	}

	if err := userRepo.Create(ctx, user); err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! User '%s' (%s) created with ID: %d\n", user.Name, user.Email, user.ID)
}
