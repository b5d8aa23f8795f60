package db

import (
	"fmt"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Handle struct {
	DB   *gorm.DB
	Path string
}

// OpenAt opens the run journal. Default is a sqlite file inside appDir;
// mysql/postgres can be selected by driver+dsn from the config.
func OpenAt(appDir, driver, dsn string) (*Handle, error) {
	var dial gorm.Dialector
	path := ""
	switch driver {
	case "", "sqlite":
		path = filepath.Join(appDir, "vk2cml.db")
		dial = sqlite.Open(path)
	case "mysql":
		dial = mysql.Open(dsn)
		path = dsn
	case "postgres":
		dial = postgres.Open(dsn)
		path = dsn
	default:
		return nil, fmt.Errorf("db: unknown driver %q", driver)
	}
	gdb, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return &Handle{DB: gdb, Path: path}, nil
}
