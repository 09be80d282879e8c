package utils

import (
	"log"

	"github.com/google/uuid"
)

// GenerateID returns a new UUID v4 string for use as a record identifier.
func GenerateID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		log.Printf("Failed to generate UUID: %v", err)
		return ""
	}
	return id.String()
}

// IsValidUUID reports whether s parses as a UUID.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
