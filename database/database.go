package database

import (
	"fmt"
	"log"

	config "github.com/anjiri1684/property_manager/configs"
	"github.com/anjiri1684/property_manager/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Open connects with the settings the engine depends on: unique violations surface as
// gorm.ErrDuplicatedKey, and transactions are only opened where the code asks for them.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableNestedTransaction:                 true,
		TranslateError:                           true,
	})
}

func ConnectDB() {
	dsn := config.Config("DATABASE_URL")
	if dsn == "" {
		log.Fatal("🔥 DATABASE_URL is not set")
	}

	var err error
	DB, err = Open(postgres.Open(dsn))
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatalf("🔥 Failed to get database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(config.ConfigInt("DB_MAX_OPEN_CONNS", 25))
	sqlDB.SetMaxIdleConns(config.ConfigInt("DB_MAX_IDLE_CONNS", 5))

	fmt.Println("✅ Database connected successfully")
}

// MigrateDB creates or updates every table the engine reads and writes.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserRole{},
		&models.Property{},
		&models.RentalUnit{},
		&models.TenantRental{},
		&models.Payment{},
	)
}

func Migrate() {
	if err := MigrateDB(DB); err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	fmt.Println("✅ Database migration successful")
}
