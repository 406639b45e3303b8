package config

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	sqlitedriver "github.com/glebarez/go-sqlite"
	"gorm.io/gorm"
)

var registerSQLiteFuncs sync.Once

// SQLiteDialector opens a file-backed SQLite store. SQLite has no regex operator, so
// REGEXP_LIKE(text, pattern, flags) is registered to give title search the same
// predicate the MySQL dialect uses.
func SQLiteDialector(path string) gorm.Dialector {
	registerSQLiteFuncs.Do(func() {
		sqlitedriver.MustRegisterDeterministicScalarFunction("regexp_like", 3, regexpLike)
	})
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	return sqlite.Open(dsn)
}

func regexpLike(_ *sqlitedriver.FunctionContext, args []driver.Value) (driver.Value, error) {
	text, ok := sqliteText(args[0])
	if !ok {
		return int64(0), nil
	}
	pattern, _ := sqliteText(args[1])
	flags, _ := sqliteText(args[2])
	if strings.Contains(flags, "i") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regexp_like: %w", err)
	}
	if re.MatchString(text) {
		return int64(1), nil
	}
	return int64(0), nil
}

func sqliteText(v driver.Value) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}
