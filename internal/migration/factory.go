package migration

import (
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/agentkernel/config"
)

// URLFromDatabaseConfig 把 database 配置段转换成迁移连接串。
// 与 GORM 使用的 DSN 不同，这里需要 golang-migrate 能识别的格式。
func URLFromDatabaseConfig(db appconfig.DatabaseConfig) (DatabaseType, string, error) {
	dbType, err := ParseDatabaseType(db.Driver)
	if err != nil {
		return "", "", err
	}
	switch dbType {
	case DatabaseTypeSQLite:
		if db.Name == "" {
			return "", "", fmt.Errorf("sqlite database path (database.name) is required")
		}
		return dbType, BuildDatabaseURL(dbType, "", 0, db.Name, "", "", ""), nil
	case DatabaseTypeMySQL:
		return dbType, BuildDatabaseURL(dbType, db.Host, db.Port, db.Name, db.User, db.Password, ""), nil
	default:
		return dbType, BuildDatabaseURL(dbType, db.Host, db.Port, db.Name, db.User, db.Password, db.SSLMode), nil
	}
}

// NewMigratorFromDatabaseConfig 使用应用配置中的数据库段创建迁移器
func NewMigratorFromDatabaseConfig(db appconfig.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, url, err := URLFromDatabaseConfig(db)
	if err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	return NewMigrator(&Config{DatabaseType: dbType, DatabaseURL: url, Logger: logger})
}

// NewMigratorFromURL 直接使用命令行给出的方言与连接串
func NewMigratorFromURL(dbType, url string, logger *zap.Logger) (*DefaultMigrator, error) {
	t, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{DatabaseType: t, DatabaseURL: url, Logger: logger})
}
