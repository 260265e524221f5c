package stages

import "github.com/shaiso/salesprice/internal/config"

// Имена артефактов.
const (
	CuratedColumnsArtifact = "curated_columns.json"
	FeaturesArtifact       = "features.json"
	TrainPipelineArtifact  = "train_pipeline.json"
)

// TrainFeaturesPath — признаки обучающего набора.
func TrainFeaturesPath(cfg *config.Config) string {
	return cfg.DataPath("train", "sales", "features.csv")
}

// TrainTargetPath — целевая переменная обучающего набора.
func TrainTargetPath(cfg *config.Config) string {
	return cfg.DataPath("train", "sales", "target.csv")
}

// TestFeaturesPath — признаки тестового набора.
func TestFeaturesPath(cfg *config.Config) string {
	return cfg.DataPath("test", "sales", "features.csv")
}

// TestTargetPath — целевая переменная тестового набора.
func TestTargetPath(cfg *config.Config) string {
	return cfg.DataPath("test", "sales", "target.csv")
}

// CuratedColumnsPath — список отобранных колонок.
func CuratedColumnsPath(cfg *config.Config) string {
	return cfg.ArtifactPath(CuratedColumnsArtifact)
}

// FeaturesPath — параметры feature pipeline.
func FeaturesPath(cfg *config.Config) string {
	return cfg.ArtifactPath(FeaturesArtifact)
}

// TrainPipelinePath — обученная модель вместе с feature pipeline.
func TrainPipelinePath(cfg *config.Config) string {
	return cfg.ArtifactPath(TrainPipelineArtifact)
}
