package repository

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// isUniqueViolation 唯一约束冲突，先查后插之间被并发写入时出现
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// mysql 1062 / postgres 23505
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "SQLSTATE 23505")
}
