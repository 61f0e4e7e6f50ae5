package config

// Storage driver names.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultUpstreamBaseURL = "https://api.mistral.ai"
	defaultModel           = "mistral-medium-latest"
	defaultTemperature     = 0.7

	defaultListen = ":8080"

	defaultChatEndpoint      = "http://localhost:8080/functions/v1/chat-with-ai"
	defaultQuestionsEndpoint = "http://localhost:8080/functions/v1/generate-questions"

	defaultStorageDriver = DriverMemory

	defaultKafkaTopic = "classroom.transcripts"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Upstream: UpstreamConfig{
			BaseURL:     defaultUpstreamBaseURL,
			Model:       defaultModel,
			Temperature: defaultTemperature,
		},
		Service: ServiceConfig{
			Listen: defaultListen,
		},
		Client: ClientConfig{
			ChatEndpoint:      defaultChatEndpoint,
			QuestionsEndpoint: defaultQuestionsEndpoint,
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
