package config

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ObjectStoreDisk = "disk"
	ObjectStoreS3   = "s3"

	ProviderCLIP = "clip"
	ProviderMock = "mock"

	// DefaultSimilarityThreshold is used when search.similarity_threshold is unset.
	DefaultSimilarityThreshold = 0.20
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.College == "" {
		cfg.College = "TestImages"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 120
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 256
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = int(cfg.Server.RateLimit) + 1
	}
	if cfg.Auth.Algorithm == "" {
		cfg.Auth.Algorithm = "HS256"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.Table == "" {
		cfg.Storage.Table = "photos"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/snapfind/data/db/photos.db"
	}
	if cfg.ObjectStore.Type == ObjectStoreDisk && cfg.ObjectStore.Root == "" {
		cfg.ObjectStore.Root = "/usr/local/var/snapfind/data/objects"
	}
	if cfg.ObjectStore.Type == ObjectStoreS3 && cfg.ObjectStore.Endpoint == "" && cfg.ObjectStore.Region != "" {
		cfg.ObjectStore.Endpoint = cfg.ObjectStore.Region + ".digitaloceanspaces.com"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderCLIP
	}
	if cfg.Embedding.VisualModelPath == "" {
		cfg.Embedding.VisualModelPath = "/usr/local/var/snapfind/data/models/clip-vit-b32-visual.onnx"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "/usr/local/var/snapfind/data/models/clip-vit-b32-text.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.ContextLength == 0 {
		cfg.Embedding.ContextLength = 77
	}
	if cfg.Embedding.VisualInputName == "" {
		cfg.Embedding.VisualInputName = "pixel_values"
	}
	if cfg.Embedding.VisualOutputName == "" {
		cfg.Embedding.VisualOutputName = "image_embeds"
	}
	if cfg.Embedding.TextInputName == "" {
		cfg.Embedding.TextInputName = "input_ids"
	}
	if cfg.Embedding.TextOutputName == "" {
		cfg.Embedding.TextOutputName = "text_embeds"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.CacheTTLSecs == 0 {
		cfg.Embedding.CacheTTLSecs = 24 * 60 * 60
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 1000
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
