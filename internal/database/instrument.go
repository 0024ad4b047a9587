package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// QueryObserver 接收每条语句的耗时，通常由 metrics.Collector 实现
type QueryObserver interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

const startKey = "agentkernel:query_start"

// Instrument 在 GORM 回调链上挂载计时钩子，按操作类型上报耗时
func Instrument(db *gorm.DB, name string, observer QueryObserver) error {
	if observer == nil {
		return nil
	}
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(op string) func(tx *gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			if start, ok := v.(time.Time); ok {
				observer.RecordDBQuery(name, op, time.Since(start))
			}
		}
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("agentkernel:before_create", before),
		cb.Create().After("gorm:create").Register("agentkernel:after_create", after("create")),
		cb.Query().Before("gorm:query").Register("agentkernel:before_query", before),
		cb.Query().After("gorm:query").Register("agentkernel:after_query", after("query")),
		cb.Update().Before("gorm:update").Register("agentkernel:before_update", before),
		cb.Update().After("gorm:update").Register("agentkernel:after_update", after("update")),
		cb.Delete().Before("gorm:delete").Register("agentkernel:before_delete", before),
		cb.Delete().After("gorm:delete").Register("agentkernel:after_delete", after("delete")),
		cb.Row().Before("gorm:row").Register("agentkernel:before_row", before),
		cb.Row().After("gorm:row").Register("agentkernel:after_row", after("row")),
		cb.Raw().Before("gorm:raw").Register("agentkernel:before_raw", before),
		cb.Raw().After("gorm:raw").Register("agentkernel:after_raw", after("raw")),
	)
}
