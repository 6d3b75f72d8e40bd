package main

import (
	"fmt"
	"log"

	"github.com/safaritrails/booking-backend/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret Generator for SafariTrails Booking")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateDeploymentSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file. Set the same hash in the Flutterwave dashboard:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secrets.JWTSecret)
	fmt.Printf("FLUTTERWAVE_SECRET_HASH=%s\n", secrets.FlutterwaveSecretHash)
	fmt.Println()
	fmt.Println("IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
