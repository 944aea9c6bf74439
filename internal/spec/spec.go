package spec

type sinkConfigs struct {
	Kafka  any `yaml:"kafka"`
	Stdout any `yaml:"stdout"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source struct {
		Driver string `yaml:"driver"` // "kafka", ...
		Config string `yaml:"config"` // path to driver YAML
	} `yaml:"source"`

	Offsets struct {
		Store string `yaml:"store"` // "kafka" | "memory"
	} `yaml:"offsets"`

	Sinks       []string    `yaml:"sinks"`
	SinkConfigs sinkConfigs `yaml:"sink_configs"`
}
