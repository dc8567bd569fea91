package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/models"
	"github.com/techmailbox/shipmail/internal/tracing"
)

type processConfigRepository struct {
	db *gorm.DB
}

func NewProcessConfigRepository(db *gorm.DB) interfaces.ProcessConfigRepository {
	return &processConfigRepository{db: db}
}

// EmailsForProcess resolves the recipient list for a process code. The match
// is exact but case-insensitive; an unknown code yields an empty list.
func (r *processConfigRepository) EmailsForProcess(ctx context.Context, process string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processConfigRepository.EmailsForProcess")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if process == "" {
		return nil, nil
	}

	var config models.ProcessConfig
	result := r.db.WithContext(ctx).
		Where("lower(process) = lower(?)", process).
		First(&config)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, errors.Wrap(result.Error, "failed to get process config")
	}

	return config.Emails, nil
}

func (r *processConfigRepository) List(ctx context.Context) ([]*models.ProcessConfig, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processConfigRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var configs []*models.ProcessConfig
	result := r.db.WithContext(ctx).
		Order("process ASC").
		Find(&configs)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return nil, errors.Wrap(result.Error, "failed to list process configs")
	}

	return configs, nil
}

func (r *processConfigRepository) Create(ctx context.Context, config *models.ProcessConfig) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processConfigRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if config.Process == "" {
		return errors.New("process code is required")
	}

	if err := r.db.WithContext(ctx).Create(config).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create process config")
	}
	return nil
}

func (r *processConfigRepository) Update(ctx context.Context, config *models.ProcessConfig) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processConfigRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, config.ID)

	if config.ID == "" {
		return errors.New("process config id is required")
	}

	result := r.db.WithContext(ctx).
		Model(&models.ProcessConfig{}).
		Where("id = ?", config.ID).
		Updates(map[string]interface{}{
			"process": config.Process,
			"emails":  config.Emails,
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return errors.Wrap(result.Error, "failed to update process config")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *processConfigRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processConfigRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.ProcessConfig{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return errors.Wrap(result.Error, "failed to delete process config")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
