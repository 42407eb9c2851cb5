package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/noty/internal/billing/domain"
	"gorm.io/gorm"
)

type ClientRepository struct {
	genID *snowflake.Node
}

func NewClientRepository(genID *snowflake.Node) domain.ClientRepository {
	return &ClientRepository{genID: genID}
}

func (r *ClientRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Client, error) {
	var client domain.Client
	err := db.WithContext(ctx).Where("id = ?", id).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *ClientRepository) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Client, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	var client domain.Client
	err := db.WithContext(ctx).Where("external_id = ?", externalID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *ClientRepository) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]domain.Client, error) {
	out := make(map[snowflake.ID]domain.Client, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var clients []domain.Client
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&clients).Error; err != nil {
		return nil, err
	}
	for _, client := range clients {
		out[client.ID] = client
	}
	return out, nil
}

func (r *ClientRepository) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Client, error) {
	var clients []domain.Client
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

// Upsert inserts the client or merges the provided fields into the stored row.
func (r *ClientRepository) Upsert(ctx context.Context, db *gorm.DB, in domain.ClientUpsert) (*domain.Client, error) {
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.ExternalID == "" {
		return nil, domain.ErrInvalidClient
	}

	now := time.Now().UTC()
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	sets := []string{"updated_at = excluded.updated_at"}
	if in.Name != nil {
		sets = append(sets, "name = excluded.name")
	}
	if in.Email != nil {
		sets = append(sets, "email = excluded.email")
	}
	if in.Phone != nil {
		sets = append(sets, "phone = excluded.phone")
	}
	if in.MobilePhone != nil {
		sets = append(sets, "mobile_phone = excluded.mobile_phone")
	}
	if in.IsActive != nil {
		sets = append(sets, "is_active = excluded.is_active")
	}

	name := valueOr(in.Name, in.ExternalID)
	err := db.WithContext(ctx).Exec(
		`INSERT INTO clients (id, external_id, name, email, phone, mobile_phone, is_active, notifications_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET `+strings.Join(sets, ", "),
		r.genID.Generate(),
		in.ExternalID,
		name,
		valueOr(in.Email, ""),
		valueOr(in.Phone, ""),
		valueOr(in.MobilePhone, ""),
		active,
		true,
		now,
		now,
	).Error
	if err != nil {
		return nil, err
	}
	return r.FindByExternalID(ctx, db, in.ExternalID)
}

func valueOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
