package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/config"
	"it-inventory-api/internal/models"
)

func main() {
	var (
		subject    = flag.String("subject", "admin", "Token subject, recorded as the actor in audit entries")
		name       = flag.String("name", "", "Display name")
		roles      = flag.String("roles", models.RoleAdmin, "Comma-separated list of roles (admin, manager, viewer)")
		expiryMins = flag.Int("expiry", 1440, "Token expiry in minutes (default: 24 hours)")
		secret     = flag.String("secret", "", "JWT secret (overrides JWT_SECRET env var)")
		issuer     = flag.String("issuer", "", "JWT issuer (overrides JWT_ISS env var)")
		audience   = flag.String("audience", "", "JWT audience (overrides JWT_AUD env var)")
	)
	flag.Parse()

	// Load config
	cfg := config.Load()

	// Override with command line flags if provided
	if *secret != "" {
		cfg.JWTSecret = *secret
	}
	if *issuer != "" {
		cfg.JWTIssuer = *issuer
	}
	if *audience != "" {
		cfg.JWTAudience = *audience
	}

	// Parse roles
	roleList := strings.Split(*roles, ",")
	for i, role := range roleList {
		roleList[i] = strings.TrimSpace(role)
	}
	if !models.ValidateRoles(roleList) {
		log.Fatalf("Invalid roles %q: valid roles are %s", *roles, strings.Join(models.ValidRoles, ", "))
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, time.Duration(*expiryMins)*time.Minute)

	token, err := jwtManager.GenerateToken(*subject, *name, roleList)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Printf("JWT Token generated successfully!\n\n")
	fmt.Printf("Subject: %s\n", *subject)
	if *name != "" {
		fmt.Printf("Name: %s\n", *name)
	}
	fmt.Printf("Roles: %s\n", strings.Join(roleList, ", "))
	fmt.Printf("Expiry: %d minutes\n", *expiryMins)
	fmt.Printf("Issuer: %s\n", cfg.JWTIssuer)
	fmt.Printf("Audience: %s\n", cfg.JWTAudience)
	fmt.Printf("\nToken:\n%s\n\n", token)

	fmt.Printf("Usage example:\n")
	fmt.Printf("curl -H \"Authorization: Bearer %s\" http://localhost:8080/api/inventory\n", token)
}
