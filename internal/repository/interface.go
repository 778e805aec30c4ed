package repository

import (
	"context"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// BaseRepository 所有仓储共有的能力
type BaseRepository interface {
	GetDB() *gorm.DB
}

// Pagination 分页参数，Total在查询后回填
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination 规范化页码与页大小
func NewPagination(page, pageSize int) *Pagination {
	if page <= 0 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return &Pagination{Page: page, PageSize: pageSize}
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// HasMore 当前页之后是否还有记录
func (p *Pagination) HasMore() bool {
	return int64(p.Page*p.PageSize) < p.Total
}

// Paginate 分页作用域
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// page 统计总数并套上分页；p为nil时返回原查询
func page(db *gorm.DB, p *Pagination) (*gorm.DB, error) {
	if p == nil {
		return db, nil
	}
	if err := db.Session(&gorm.Session{}).Count(&p.Total).Error; err != nil {
		return nil, err
	}
	return db.Scopes(Paginate(p)), nil
}

// BaseRepo 基础仓储实现
type BaseRepo struct {
	db *gorm.DB
}

// NewBaseRepo 创建基础仓储
func NewBaseRepo(db *gorm.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

// GetDB 获取数据库实例
func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

// Transaction 单仓储内的多表写入；跨仓储请用Manager.Transaction
func (r *BaseRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
