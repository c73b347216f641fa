package config

func loadProductionConfig(cfg *Config) {
	cfg.DatabaseFilePath = "/data/hondana.sqlite"
}
