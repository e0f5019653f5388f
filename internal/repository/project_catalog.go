package repository

import (
	"context"
	"errors"

	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectCatalog 项目目录，提供创建意向时的权威收款钱包
type ProjectCatalog interface {
	GetProject(ctx context.Context, id int64) (*model.ProjectModel, error)
}

// ProjectRepository 基于共享 project 表的只读目录
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetProject 获取项目
func (r *ProjectRepository) GetProject(ctx context.Context, id int64) (*model.ProjectModel, error) {
	var project model.ProjectModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("project %d", id)
		}
		return nil, dbErr("get project", err)
	}
	return &project, nil
}

// UpsertProject 同步项目目录快照
func (r *ProjectRepository) UpsertProject(ctx context.Context, project *model.ProjectModel) error {
	project.WalletAddress = NormalizeAddress(project.WalletAddress)
	if project.Status == "" {
		project.Status = model.ProjectStatusActive
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "wallet_address", "status", "updated_at"}),
	}).Create(project).Error
	return dbErr("upsert project", err)
}
