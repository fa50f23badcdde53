// cmd/adduser/main.go
// Creates or updates a user in the database.
//
// Usage:
//
//	go run ./cmd/adduser -username maria -password testing -role tally_master
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/padraicbc/pageantapi/config"
	bundb "github.com/padraicbc/pageantapi/db"
	"github.com/padraicbc/pageantapi/handlers"
	"github.com/padraicbc/pageantapi/models"
	"github.com/padraicbc/pageantapi/scoring"
)

func main() {
	username := flag.String("username", "", "username (required)")
	password := flag.String("password", "", "plain-text password (required)")
	roleFlag := flag.String("role", string(scoring.RoleJudge), "one of judge, head_judge, tally_master, auditor, board, admin")
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal("both -username and -password are required")
	}
	role, err := scoring.ParseRole(*roleFlag)
	if err != nil {
		log.Fatal(err)
	}

	hash, err := handlers.HashPasswordForUser(*username, *password)
	if err != nil {
		log.Fatal("hash password:", err)
	}

	cfg := config.Load()
	db := bundb.Setup(cfg)
	defer db.Close()

	ctx := context.Background()
	if err := bundb.CreateTables(ctx, db); err != nil {
		log.Fatal("create tables:", err)
	}

	user := &models.User{
		Username: strings.TrimSpace(*username),
		Password: hash,
		Role:     string(role),
	}

	_, err = db.NewInsert().Model(user).
		On("CONFLICT (username) DO UPDATE SET password = EXCLUDED.password, role = EXCLUDED.role").
		Exec(ctx)
	if err != nil {
		log.Fatal("insert user:", err)
	}

	fmt.Printf("user %q saved with role %s\n", user.Username, role)
}
