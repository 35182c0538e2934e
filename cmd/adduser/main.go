// Command adduser creates an account directly in the database, or promotes
// an existing one to admin. It is the only way to create the first admin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/financetracker/backend/internal/auth"
	"github.com/financetracker/backend/internal/db"
)

func main() {
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	email := fs.String("email", "", "Email address")
	name := fs.String("name", "", "Display name (defaults to the part of the email before @)")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	makeAdmin := fs.Bool("admin", false, "Grant the admin role; promotes the user if it already exists")
	driver := fs.String("driver", envOr("DB_DRIVER", "sqlite"), "Database driver: postgres, pgx or sqlite")
	dsn := fs.String("dsn", envOr("DB_DSN", "file:financetracker.db?_pragma=foreign_keys(1)"), "Database DSN")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		fmt.Fprintln(stdout, "Usage: adduser -email <email> [-name <name>] [-password <password>] [-admin] [-driver <driver>] [-dsn <dsn>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: email")
	}

	ctx := context.Background()
	database, err := db.Open(ctx, db.Options{Driver: *driver, DSN: *dsn})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	users := db.NewUserRepository(database)
	normalized := auth.NormalizeEmail(*email)

	existing, err := users.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		if !*makeAdmin {
			return fmt.Errorf("user %s already exists", normalized)
		}
		if err := users.UpdateRole(ctx, existing.ID, db.RoleAdmin); err != nil {
			return fmt.Errorf("failed to promote user: %w", err)
		}
		fmt.Fprintf(stdout, "User %s promoted to admin\n", normalized)
		return nil
	case !errors.Is(err, db.ErrUserNotFound):
		return fmt.Errorf("failed to look up user: %w", err)
	}

	displayName := strings.TrimSpace(*name)
	if displayName == "" {
		displayName, _, _ = strings.Cut(normalized, "@")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	req := auth.RegisterRequest{Name: displayName, Email: normalized, Password: password}
	if problems := req.Validate(); len(problems) > 0 {
		for _, field := range []string{"name", "email", "password"} {
			if p, ok := problems[field]; ok {
				return errors.New(p)
			}
		}
	}

	// Only hashing is used here, so the signing fields stay empty.
	creds := auth.NewJWTCredentials(auth.JWTConfig{BcryptCost: bcryptCost()})
	hash, err := creds.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	role := db.RoleUser
	if *makeAdmin {
		role = db.RoleAdmin
	}
	user := &db.User{
		ID:           uuid.New(),
		Name:         displayName,
		Email:        normalized,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	if err := users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s and role %s\n", user.Email, user.ID, user.Role)
	return nil
}

func bcryptCost() int {
	cost, _ := strconv.Atoi(os.Getenv("BCRYPT_COST"))
	return cost
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
