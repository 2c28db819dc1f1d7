package config

import (
	"database/sql"
	"fmt"
	"strconv"
)

// Settings is the typed snapshot of the runtime-tunable app_settings table.
// A snapshot is read per operation; changes take effect on the next read
// without a restart.
type Settings struct {
	PaymentTestMode    bool
	PaymentSkipPayment bool

	ComfyUIMaxConcurrency int
	APIMaxConcurrency     int
	TaskQueueMaxSize      int
	TaskQueueWorkers      int

	BrandName           string
	ImageUploadStrategy string // "grsai" or "direct"

	PrinterAPIURL      string
	PrinterShopID      string
	PrinterShopName    string
	PrinterSourceAppID string
	PrinterMaxRetries  int
	FileAccessBaseURL  string
}

func defaultSettings() Settings {
	return Settings{
		ComfyUIMaxConcurrency: 2,
		APIMaxConcurrency:     5,
		TaskQueueMaxSize:      100,
		TaskQueueWorkers:      3,
		BrandName:             "PhotoPrint",
		ImageUploadStrategy:   "grsai",
		PrinterMaxRetries:     3,
	}
}

// RuntimeStore reads the app_settings key/value table.
type RuntimeStore struct {
	db *sql.DB
}

func NewRuntimeStore(db *sql.DB) *RuntimeStore {
	return &RuntimeStore{db: db}
}

// Snapshot loads all settings. A missing key keeps its default; a failed
// query is an error, not a silent fallback.
func (s *RuntimeStore) Snapshot() (Settings, error) {
	out := defaultSettings()

	rows, err := s.db.Query(`SELECT config_key, config_value FROM app_settings`)
	if err != nil {
		return out, fmt.Errorf("failed to load app settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return out, fmt.Errorf("failed to scan app setting: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("failed to read app settings: %w", err)
	}

	out.PaymentTestMode = boolVal(values, "payment_test_mode", out.PaymentTestMode)
	out.PaymentSkipPayment = boolVal(values, "payment_skip_payment", out.PaymentSkipPayment)
	out.ComfyUIMaxConcurrency = intVal(values, "comfyui_max_concurrency", out.ComfyUIMaxConcurrency)
	out.APIMaxConcurrency = intVal(values, "api_max_concurrency", out.APIMaxConcurrency)
	out.TaskQueueMaxSize = intVal(values, "task_queue_max_size", out.TaskQueueMaxSize)
	out.TaskQueueWorkers = intVal(values, "task_queue_workers", out.TaskQueueWorkers)
	out.BrandName = strVal(values, "brand_name", out.BrandName)
	out.ImageUploadStrategy = strVal(values, "image_upload_strategy", out.ImageUploadStrategy)
	out.PrinterAPIURL = strVal(values, "printer_api_url", out.PrinterAPIURL)
	out.PrinterShopID = strVal(values, "printer_shop_id", out.PrinterShopID)
	out.PrinterShopName = strVal(values, "printer_shop_name", out.PrinterShopName)
	out.PrinterSourceAppID = strVal(values, "printer_source_app_id", out.PrinterSourceAppID)
	out.PrinterMaxRetries = intVal(values, "printer_max_retries", out.PrinterMaxRetries)
	out.FileAccessBaseURL = strVal(values, "file_access_base_url", out.FileAccessBaseURL)

	return out, nil
}

// Set upserts one key. Used by operator tooling; the next Snapshot picks
// the value up.
func (s *RuntimeStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO app_settings (config_key, config_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (config_key) DO UPDATE SET config_value = $2, updated_at = NOW()
	`, key, value)
	return err
}

func strVal(values map[string]string, key, def string) string {
	if v, ok := values[key]; ok && v != "" {
		return v
	}
	return def
}

func intVal(values map[string]string, key string, def int) int {
	if v, ok := values[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolVal(values map[string]string, key string, def bool) bool {
	if v, ok := values[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
