package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pobtrack/pob-backend/internal/utils"
	"github.com/pobtrack/pob-backend/pkg/jwt"
)

func main() {
	secretFlag := flag.String("secret", "", "existing JWT_SECRET to mint a token with (a new one is generated when empty)")
	username := flag.String("token-for", "", "also mint an operator token for this username (gate kiosks, scripts)")
	roles := flag.String("roles", jwt.RoleOperator, "comma separated roles for the minted token")
	expiry := flag.Duration("expiry", 30*24*time.Hour, "lifetime of the minted token")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for the POB backend")
	fmt.Println("===========================================")
	fmt.Println()

	secret := *secretFlag
	if secret == "" {
		var err error
		secret, err = utils.GenerateJWTSecret()
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Println("Add this to your .env file:")
		fmt.Println()
		fmt.Printf("JWT_SECRET=%s\n", secret)
		fmt.Println()
	}

	if *username != "" {
		var roleList []string
		for _, r := range strings.Split(*roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roleList = append(roleList, r)
			}
		}

		token, err := jwt.NewService(secret, *expiry).GenerateAccessToken(uuid.New(), *username, roleList)
		if err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		fmt.Printf("Token for %s (%s, valid %s):\n\n%s\n\n", *username, strings.Join(roleList, ","), expiry.String(), token)
	}

	fmt.Println("IMPORTANT: Keep secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
