package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"photoprint-backend/internal/models"
)

func (c *Client) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, price, free_selection_count, extra_photo_price, is_active
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.FreeSelectionCount, &p.ExtraPhotoPrice, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (c *Client) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	var p models.Product
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, price, free_selection_count, extra_photo_price, is_active
		FROM products WHERE name = $1 AND is_active
	`, name).Scan(&p.ID, &p.Name, &p.Price, &p.FreeSelectionCount, &p.ExtraPhotoPrice, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product by name: %w", err)
	}
	return &p, nil
}

func (c *Client) GetProductSize(ctx context.Context, id int64) (*models.ProductSize, error) {
	var s models.ProductSize
	err := c.db.QueryRowContext(ctx, `
		SELECT id, product_id, name, price, width_cm, height_cm
		FROM product_sizes WHERE id = $1
	`, id).Scan(&s.ID, &s.ProductID, &s.Name, &s.Price, &s.WidthCM, &s.HeightCM)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product size: %w", err)
	}
	return &s, nil
}

func (c *Client) GetStyleImage(ctx context.Context, id int64) (*models.StyleImage, error) {
	var si models.StyleImage
	err := c.db.QueryRowContext(ctx, `
		SELECT id, style_category_id, name, image_path, api_template_id, prompt, is_active
		FROM style_images WHERE id = $1
	`, id).Scan(&si.ID, &si.StyleCategoryID, &si.Name, &si.ImagePath, &si.APITemplateID, &si.Prompt, &si.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get style image: %w", err)
	}
	return &si, nil
}

func (c *Client) GetAPITemplate(ctx context.Context, id int64) (*models.APITemplate, error) {
	var t models.APITemplate
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, provider_config_id, model_name, workflow_id, request_body_template, output_node_id, is_active
		FROM api_templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.ProviderConfigID, &t.ModelName, &t.WorkflowID, &t.RequestBodyTemplate, &t.OutputNodeID, &t.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api template: %w", err)
	}
	return &t, nil
}

func (c *Client) GetProviderConfig(ctx context.Context, id int64) (*models.APIProviderConfig, error) {
	var pc models.APIProviderConfig
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, api_type, host, api_key, api_secret, draw_endpoint, query_endpoint, media_code, is_active, updated_at
		FROM api_provider_configs WHERE id = $1
	`, id).Scan(&pc.ID, &pc.Name, &pc.APIType, &pc.Host, &pc.APIKey, &pc.APISecret,
		&pc.DrawEndpoint, &pc.QueryEndpoint, &pc.MediaCode, &pc.IsActive, &pc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}
	return &pc, nil
}

// ResolveStyleRecipe walks style image -> template -> provider config in one
// call. It is the lookup the task manager performs before every submission.
func (c *Client) ResolveStyleRecipe(ctx context.Context, styleImageID int64) (*models.StyleImage, *models.APITemplate, *models.APIProviderConfig, error) {
	si, err := c.GetStyleImage(ctx, styleImageID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !si.APITemplateID.Valid {
		return nil, nil, nil, models.Validationf("style image %d has no API template bound", styleImageID)
	}
	tmpl, err := c.GetAPITemplate(ctx, si.APITemplateID.Int64)
	if err != nil {
		return nil, nil, nil, err
	}
	if !tmpl.IsActive {
		return nil, nil, nil, models.Validationf("api template %d is disabled", tmpl.ID)
	}
	cfg, err := c.GetProviderConfig(ctx, tmpl.ProviderConfigID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.IsActive {
		return nil, nil, nil, models.Validationf("provider config %d is disabled", cfg.ID)
	}
	return si, tmpl, cfg, nil
}
