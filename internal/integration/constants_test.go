package integration_test

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// User related constants
	TestUserFirstName = "John"
	TestUserLastName  = "Doe"
	TestUserEmail     = "test@example.com"
	TestUserPassword  = "Test123!@#"

	// Show related constants
	TestShowDuration = 2 * time.Hour

	// Seat related constants
	TestSeatRow      = "F"
	TestSeatCategory = "PREMIUM"

	TestPaymentMethod = "card"
)

var TestSeatPrice = decimal.RequireFromString("12.50")
