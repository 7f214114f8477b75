package config

import "testing"

func TestDefault(t *testing.T) {

	cfg := Default()
	if cfg.Folds != 5 || cfg.FACeiling != 0.05 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Workers < 1 {
		t.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
}

func TestFromEnvOverrides(t *testing.T) {

	t.Setenv("HIERTAX_FOLDS", "10")
	t.Setenv("HIERTAX_FA_CEILING", "0.01")
	t.Setenv("HIERTAX_SEED", "99")
	t.Setenv("HIERTAX_PROGRESS", "true")

	cfg := FromEnv()
	if cfg.Folds != 10 {
		t.Errorf("Folds = %d, want 10", cfg.Folds)
	}
	if cfg.FACeiling != 0.01 {
		t.Errorf("FACeiling = %f, want 0.01", cfg.FACeiling)
	}
	if cfg.Seed != 99 {
		t.Errorf("Seed = %d, want 99", cfg.Seed)
	}
	if !cfg.Progress {
		t.Errorf("Progress should be on")
	}
}

func TestFromEnvBadValueFallsBack(t *testing.T) {

	t.Setenv("HIERTAX_FOLDS", "many")

	cfg := FromEnv()
	if cfg.Folds != Default().Folds {
		t.Errorf("bad value should fall back to default, got %d", cfg.Folds)
	}
}
