package database

import (
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Init() *gorm.DB {
	dsn := os.Getenv("DATABASE_URL")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// Unique-violation errors become gorm.ErrDuplicatedKey; the number
		// and version allocators retry on it.
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("failed to connect database:", err)
	}
	return db
}
