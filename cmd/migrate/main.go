package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/damoang/angple-rules/internal/config"
	"github.com/damoang/angple-rules/internal/migration"
	pkglogger "github.com/damoang/angple-rules/pkg/logger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.dev.yaml", "config file path")
	dryRun := flag.Bool("dry-run", false, "list the tables that would be migrated without touching the database")
	verify := flag.Bool("verify", false, "check that every table exists")
	verbose := flag.Bool("verbose", false, "verbose SQL logging")
	flag.Parse()

	config.LoadDotEnv()
	pkglogger.InitStructured("local")

	if *dryRun {
		for _, table := range migration.Tables() {
			fmt.Println(table)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		pkglogger.Fatal("Failed to load config: %v", err)
	}

	logLevel := gormlogger.Warn
	if *verbose {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(mysql.Open(cfg.Database.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		pkglogger.Fatal("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		pkglogger.Fatal("Failed to get underlying DB: %v", err)
	}
	defer sqlDB.Close()

	if *verify {
		missing := migration.Missing(db)
		if len(missing) > 0 {
			pkglogger.Error("[migrate] missing tables: %v", missing)
			sqlDB.Close()
			os.Exit(1)
		}
		pkglogger.Info("[migrate] all %d tables present", len(migration.Tables()))
		return
	}

	start := time.Now()
	if err := migration.Run(db); err != nil {
		pkglogger.Error("[migrate] FAILED: %v", err)
		sqlDB.Close()
		os.Exit(1)
	}
	pkglogger.Info("[migrate] completed in %v", time.Since(start))
}
