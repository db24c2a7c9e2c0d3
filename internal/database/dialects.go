package database

import (
	"cmp"
	"fmt"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// serverDialect describes a host-based SQL server the notification store can run on.
type serverDialect struct {
	name      string
	host      string
	port      int
	options   map[string]string
	format    func(cfg Config, addr string, options []string) string
	dialector func(dsn string) gorm.Dialector
}

var (
	postgresDialect = serverDialect{
		name:    "postgres",
		host:    "localhost",
		port:    5432,
		options: map[string]string{"TimeZone": "UTC", "sslmode": "disable"},
		format: func(cfg Config, addr string, options []string) string {
			host, port, _ := net.SplitHostPort(addr)
			fields := []string{"host=" + host, "port=" + port, "user=" + cfg.User, "dbname=" + cfg.Name}
			if cfg.Password != "" {
				fields = append(fields, "password="+cfg.Password)
			}
			return strings.Join(append(fields, options...), " ")
		},
		dialector: postgres.Open,
	}

	mysqlDialect = serverDialect{
		name:    "mysql",
		host:    "127.0.0.1",
		port:    3306,
		options: map[string]string{"charset": "utf8mb4", "parseTime": "True", "loc": "UTC"},
		format: func(cfg Config, addr string, options []string) string {
			account := cfg.User
			if cfg.Password != "" {
				account += ":" + cfg.Password
			}
			return fmt.Sprintf("%s@tcp(%s)/%s?%s", account, addr, cfg.Name, strings.Join(options, "&"))
		},
		dialector: mysql.Open,
	}
)

// dsn returns cfg.DSN verbatim when set. Otherwise it renders the dialect's connection
// string with cfg.Options layered over the dialect defaults, in key order.
func (d serverDialect) dsn(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", fmt.Errorf("%s configuration requires user and database name", d.name)
	}

	merged := maps.Clone(d.options)
	maps.Copy(merged, cfg.Options)
	options := make([]string, 0, len(merged))
	for _, key := range slices.Sorted(maps.Keys(merged)) {
		options = append(options, key+"="+merged[key])
	}

	addr := net.JoinHostPort(cmp.Or(cfg.Host, d.host), strconv.Itoa(cmp.Or(cfg.Port, d.port)))
	return d.format(cfg, addr, options), nil
}

func (d serverDialect) open(cfg Config) (*gorm.DB, error) {
	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(d.dialector(dsn), gormConfig())
}
