package database

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/mysql"
	"github.com/golang-migrate/migrate/database/sqlite3"
	_ "github.com/golang-migrate/migrate/source/file"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/xeyes/config"
	"github.com/sisu-network/xeyes/types"
)

type Database interface {
	Init() error
	Close() error

	SaveResult(record *types.TrackRecord) error
	// LoadResult returns nil when the source tx has never been tracked.
	LoadResult(sourceTxHash string) (*types.TrackRecord, error)
}

type DefaultDatabase struct {
	cfg *config.XEyes
	db  *sql.DB
}

type dbLogger struct {
}

func (loggger *dbLogger) Printf(format string, v ...interface{}) {
	log.Verbosef(strings.TrimSuffix(format, "\n"), v...)
}

func (loggger *dbLogger) Verbose() bool {
	return true
}

func NewDb(cfg *config.XEyes) Database {
	return &DefaultDatabase{
		cfg: cfg,
	}
}

func (d *DefaultDatabase) Connect() error {
	if d.cfg.InMemory {
		database, err := sql.Open("sqlite3", ":memory:")
		if err != nil {
			return err
		}
		// Every sqlite connection to :memory: is a separate database.
		database.SetMaxOpenConns(1)

		d.db = database
		log.Info("In-memory db is created")
		return nil
	}

	host := d.cfg.DbHost
	if host == "" {
		return fmt.Errorf("DB host cannot be empty")
	}

	port := d.cfg.DbPort

	username := d.cfg.DbUsername
	password := d.cfg.DbPassword
	schema := d.cfg.DbSchema

	// Connect to the db
	url := fmt.Sprintf("%s:%s@tcp(%s:%d)/", username, password, host, port)
	database, err := sql.Open("mysql", url)
	if err != nil {
		return err
	}
	_, err = database.Exec("CREATE DATABASE IF NOT EXISTS " + schema)
	if err != nil {
		database.Close()
		return err
	}
	database.Close()

	database, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", username, password, host, port, schema))
	if err != nil {
		return err
	}

	d.db = database
	log.Info("Db is connected successfully")
	return nil
}

func (d *DefaultDatabase) DoMigration() error {
	migrationsDir, err := MigrationsTempDir()
	if err != nil {
		return err
	}
	defer os.RemoveAll(migrationsDir)

	var m *migrate.Migrate
	if d.cfg.InMemory {
		driver, err := sqlite3.WithInstance(d.db, &sqlite3.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithDatabaseInstance("file://"+migrationsDir, "sqlite3", driver)
		if err != nil {
			return err
		}
	} else {
		driver, err := mysql.WithInstance(d.db, &mysql.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithDatabaseInstance("file://"+migrationsDir, "mysql", driver)
		if err != nil {
			return err
		}
	}

	m.Log = &dbLogger{}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}

func (d *DefaultDatabase) Init() error {
	err := d.Connect()
	if err != nil {
		log.Error("Failed to connect to DB. Err =", err)
		return err
	}

	err = d.DoMigration()
	if err != nil {
		log.Error("Failed to migrate DB. Err =", err)
		return err
	}

	return nil
}

func (d *DefaultDatabase) Close() error {
	if d.db == nil {
		return nil
	}

	return d.db.Close()
}

func (d *DefaultDatabase) SaveResult(record *types.TrackRecord) error {
	_, err := d.db.Exec(`REPLACE INTO tracked_deposits (source_tx_hash, source_chain, source_block,
		deposit_count, deposit_index, destination_chain, destination_tx_hash, destination_block,
		outcome, state, stage, error_msg, elapsed_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToLower(record.SourceTxHash), record.SourceChain, record.SourceBlock,
		record.DepositCount, record.DepositIndex, record.DestinationChain, record.DestinationTxHash,
		record.DestinationBlock, string(record.Outcome), string(record.State), string(record.Stage),
		record.Error, record.ElapsedMs,
	)
	if err != nil {
		return fmt.Errorf("cannot save result of tx %s: %w", record.SourceTxHash, err)
	}

	return nil
}

func (d *DefaultDatabase) LoadResult(sourceTxHash string) (*types.TrackRecord, error) {
	rows, err := d.db.Query(`SELECT source_tx_hash, source_chain, source_block, deposit_count,
		deposit_index, destination_chain, destination_tx_hash, destination_block, outcome, state,
		stage, error_msg, elapsed_ms FROM tracked_deposits WHERE source_tx_hash=?`,
		strings.ToLower(sourceTxHash),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	record := &types.TrackRecord{}
	var outcome, state, stage string
	var errMsg sql.NullString
	err = rows.Scan(&record.SourceTxHash, &record.SourceChain, &record.SourceBlock,
		&record.DepositCount, &record.DepositIndex, &record.DestinationChain,
		&record.DestinationTxHash, &record.DestinationBlock, &outcome, &state, &stage, &errMsg,
		&record.ElapsedMs,
	)
	if err != nil {
		return nil, err
	}

	record.Outcome = types.Outcome(outcome)
	record.State = types.TrackState(state)
	record.Stage = types.Stage(stage)
	record.Error = errMsg.String

	return record, nil
}
