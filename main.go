package main

import (
	"fmt"
	"log"
	"os"

	"github.com/veilmail/relay/config"
	"github.com/veilmail/relay/internal/database"
	"github.com/veilmail/relay/internal/repository"
	"github.com/veilmail/relay/server"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: relay <command>")
		fmt.Println("Commands:")
		fmt.Println("  migrate   Run database migrations")
		fmt.Println("  server    Start the application server")
		os.Exit(1)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}

	// Setup the database
	relayDB, err := database.InitRelayDatabase(&database.DatabaseConfig{
		DBName:          cfg.RelayDatabaseConfig.DBName,
		Host:            cfg.RelayDatabaseConfig.Host,
		Port:            cfg.RelayDatabaseConfig.Port,
		User:            cfg.RelayDatabaseConfig.User,
		Password:        cfg.RelayDatabaseConfig.Password,
		MaxConn:         cfg.RelayDatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.RelayDatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.RelayDatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.RelayDatabaseConfig.LogLevel,
		SSLMode:         cfg.RelayDatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Relay database initialization failed: %v", err)
	}

	switch os.Args[1] {
	case "migrate":

		err := repository.MigrateRelayDB(cfg.RelayDatabaseConfig, relayDB)
		if err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		log.Println("Database migration completed successfully")

	case "server":

		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
		log.Println("VeilMail relay starting up...")

		srv, err := server.NewServer(cfg, relayDB)
		if err != nil {
			log.Fatalf("Server setup failed: %v", err)
		}

		err = srv.Run()
		if err != nil {
			log.Fatalf("Server startup failed: %v", err)
		}

		log.Println("Shutdown complete")

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Usage: relay <command>")
		fmt.Println("Commands:")
		fmt.Println("  migrate   Run database migrations")
		fmt.Println("  server    Start the application server")
		os.Exit(1)
	}
}
