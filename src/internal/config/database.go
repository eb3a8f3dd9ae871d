package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/VectorBits/econaudit/src/internal/logger"
	_ "github.com/go-sql-driver/mysql"
)

// InitDB opens the MySQL pool described by cfg.Database, creating the schema
// when the first ping fails. Table migrations belong to the store package.
func InitDB(ctx context.Context, cfg *AppConfig) (*sql.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		return nil, fmt.Errorf("InitDB: nil configuration")
	}

	dsn := cfg.GetDatabaseDSN(true)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("InitDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	err = db.PingContext(ctxPing)
	cancelPing()

	if err != nil {
		logger.Warn("Database ping failed for '%s': %v", cfg.Database.Name, err)

		dbRoot, errRoot := sql.Open("mysql", cfg.GetDatabaseDSN(false))
		if errRoot != nil {
			db.Close()
			return nil, fmt.Errorf("InitDB: open server connection: %w", errRoot)
		}
		defer dbRoot.Close()

		createDBSQL := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", cfg.Database.Name)
		if _, errExec := dbRoot.ExecContext(ctx, createDBSQL); errExec != nil {
			db.Close()
			return nil, fmt.Errorf("InitDB: create database: %w", errExec)
		}
		logger.Info("Database '%s' created (or already exists)", cfg.Database.Name)

		db.Close()
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("InitDB: %w", err)
		}
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("InitDB ping failed: %w", err)
	}
	return db, nil
}

func (c *AppConfig) GetRPCManager(chainName string, proxy string) (*RPCManager, error) {
	chainConfig, err := c.GetChainConfig(chainName)
	if err != nil {
		return nil, err
	}
	return NewRPCManager(chainConfig.Name, chainConfig.RPCURLs, 10*time.Second, proxy)
}

func (c *AppConfig) GetAPIKeyManager(chainName string) (*APIKeyManager, error) {
	chainConfig, err := c.GetChainConfig(chainName)
	if err != nil {
		return nil, err
	}
	return NewAPIKeyManager(chainConfig.Explorer.APIKeys, chainConfig.Explorer.APIKey), nil
}
