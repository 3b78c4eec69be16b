package db

import (
	"fmt"
	"net"
	"strconv"

	drivermysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Options selects and locates the call-log database.
type Options struct {
	Driver   string // DriverSQLite (default) or DriverMySQL
	Path     string // sqlite file, or ":memory:"
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DSN builds a MySQL DSN with parseTime enabled.
func DSN(opts Options) string {
	cfg := drivermysql.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Connect opens a GORM connection for opts.
func Connect(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	var target string
	switch opts.Driver {
	case "", DriverSQLite:
		dialector = sqlite.Open(opts.Path)
		target = opts.Path
	case DriverMySQL:
		dialector = mysql.Open(DSN(opts))
		target = fmt.Sprintf("%s:%d/%s", opts.Host, opts.Port, opts.Database)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s: %w", target, err)
	}
	return db, nil
}
