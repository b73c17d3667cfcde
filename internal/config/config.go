package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/OFFIS-RIT/threadgraph/internal/util"
	"github.com/OFFIS-RIT/threadgraph/pkg/archive"

	"github.com/go-playground/validator"
	"github.com/pelletier/go-toml/v2"
)

// Field maps a key of the raw archive record to a key of the extracted record.
type Field struct {
	From string `toml:"from" validate:"required"`
	To   string `toml:"to" validate:"required"`
}

// Source is one input file of a line-based stage. Name identifies the source
// in checkpoints, queue messages and lease keys.
type Source struct {
	Name   string  `toml:"name" validate:"required,sourcename"`
	Path   string  `toml:"path" validate:"required"`
	Output string  `toml:"output" validate:"required"`
	Kind   string  `toml:"kind" validate:"omitempty,oneof=comments submissions"`
	Fields []Field `toml:"fields" validate:"dive"`
}

type CheckpointConfig struct {
	Backend string `toml:"backend" validate:"oneof=file postgres"`
	Path    string `toml:"path"`
}

type ExtractConfig struct {
	ChunkSize        int      `toml:"chunk_size" validate:"gt=0"`
	MaxDecodeWindow  int      `toml:"max_decode_window" validate:"gtefield=ChunkSize"`
	FlushInterval    int      `toml:"flush_interval" validate:"gt=0"`
	ProgressInterval int      `toml:"progress_interval" validate:"gt=0"`
	DropPartialTail  bool     `toml:"drop_partial_tail"`
	Sources          []Source `toml:"sources" validate:"dive"`
}

type CleanConfig struct {
	FlushInterval    int  `toml:"flush_interval" validate:"gt=0"`
	ProgressInterval int  `toml:"progress_interval" validate:"gt=0"`
	MinWords         int  `toml:"min_words" validate:"gte=0"`
	EntityFilter     bool `toml:"entity_filter"`
	// FilterModel overrides the chat model used by the entity filter.
	FilterModel       string  `toml:"filter_model"`
	FilterTemperature float64 `toml:"filter_temperature" validate:"gte=0,lte=2"`
	// FilterThinking is the reasoning effort of the filter model, if any.
	FilterThinking string   `toml:"filter_thinking" validate:"omitempty,oneof=low medium high"`
	Sources        []Source `toml:"sources" validate:"dive"`
}

type TripletsConfig struct {
	FlushInterval    int `toml:"flush_interval" validate:"gt=0"`
	ProgressInterval int `toml:"progress_interval" validate:"gt=0"`
	MaxInputTokens   int `toml:"max_input_tokens" validate:"gt=0"`
	NumSequences     int `toml:"num_sequences" validate:"gt=0"`
	// Model overrides the sequence model of the AI adapter.
	Model   string   `toml:"model"`
	Sources []Source `toml:"sources" validate:"dive"`
}

type LinkConfig struct {
	FlushInterval       int      `toml:"flush_interval" validate:"gt=0"`
	ProgressInterval    int      `toml:"progress_interval" validate:"gt=0"`
	SimilarityThreshold int      `toml:"similarity_threshold" validate:"gte=0,lte=100"`
	Language            string   `toml:"language" validate:"required"`
	Endpoint            string   `toml:"endpoint" validate:"required,url"`
	UserAgent           string   `toml:"user_agent" validate:"required"`
	TimeoutSeconds      int      `toml:"timeout_seconds" validate:"gt=0"`
	MaxRetries          int      `toml:"max_retries" validate:"gt=0"`
	Sources             []Source `toml:"sources" validate:"dive"`
}

// Variant is one pruned rendition of the graph.
type Variant struct {
	Name      string `toml:"name" validate:"required,sourcename"`
	Threshold int    `toml:"threshold" validate:"gte=0,lte=100"`
	Gephi     bool   `toml:"gephi"`
}

type GraphConfig struct {
	InputDir     string    `toml:"input_dir" validate:"required"`
	OutputDir    string    `toml:"output_dir" validate:"required"`
	Basename     string    `toml:"basename" validate:"required"`
	Variants     []Variant `toml:"variants" validate:"dive"`
	UploadPrefix string    `toml:"upload_prefix"`
	Store        bool      `toml:"store"`
}

// Config is the parsed pipeline.toml.
type Config struct {
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Extract    ExtractConfig    `toml:"extract"`
	Clean      CleanConfig      `toml:"clean"`
	Triplets   TripletsConfig   `toml:"triplets"`
	Link       LinkConfig       `toml:"link"`
	Graph      GraphConfig      `toml:"graph"`
}

// Default returns a configuration without sources.
func Default() *Config {
	return &Config{
		Checkpoint: CheckpointConfig{
			Backend: "file",
			Path:    "checkpoints.json",
		},
		Extract: ExtractConfig{
			ChunkSize:        archive.DefaultChunkSize,
			MaxDecodeWindow:  archive.DefaultMaxWindow,
			FlushInterval:    100000,
			ProgressInterval: 100000,
		},
		Clean: CleanConfig{
			FlushInterval:    100,
			ProgressInterval: 100000,
			MinWords:         3,

			FilterTemperature: 0.1,
		},
		Triplets: TripletsConfig{
			FlushInterval:    25,
			ProgressInterval: 1000,
			MaxInputTokens:   256,
			NumSequences:     3,
		},
		Link: LinkConfig{
			FlushInterval:       100,
			ProgressInterval:    1000,
			SimilarityThreshold: 70,
			Language:            "en",
			Endpoint:            "https://www.wikidata.org/w/api.php",
			UserAgent:           "threadgraph/1.0 (entity linking)",
			TimeoutSeconds:      15,
			MaxRetries:          3,
		},
		Graph: GraphConfig{
			InputDir:  "data/linked",
			OutputDir: "data/graph",
			Basename:  "knowledge_graph",
			Variants: []Variant{
				{Name: "large", Threshold: 10, Gephi: true},
				{Name: "small", Threshold: 98, Gephi: true},
			},
		},
	}
}

// Load reads the TOML file at path on top of the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file access.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	variants := cfg.Graph.Variants
	cfg.Graph.Variants = nil
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if len(cfg.Graph.Variants) == 0 {
		cfg.Graph.Variants = variants
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Checkpoint.Backend = util.GetEnvString("CHECKPOINT_BACKEND", c.Checkpoint.Backend)
	c.Checkpoint.Path = util.GetEnvString("CHECKPOINT_PATH", c.Checkpoint.Path)
	c.Link.Endpoint = util.GetEnvString("KB_ENDPOINT", c.Link.Endpoint)
	c.Link.Language = util.GetEnvString("KB_LANGUAGE", c.Link.Language)
	c.Link.UserAgent = util.GetEnvString("KB_USER_AGENT", c.Link.UserAgent)
	c.Link.TimeoutSeconds = util.GetEnvInt("KB_TIMEOUT_SECONDS", c.Link.TimeoutSeconds)
	c.Clean.EntityFilter = util.GetEnvBool("ENTITY_FILTER", c.Clean.EntityFilter)
	c.Graph.UploadPrefix = util.GetEnvString("GRAPH_UPLOAD_PREFIX", c.Graph.UploadPrefix)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Names become JSON key paths and lease keys.
	_ = v.RegisterValidation("sourcename", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return name != "" && !strings.HasPrefix(name, ":") && !strings.ContainsAny(name, "*?|#@/")
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cp := sl.Current().Interface().(CheckpointConfig)
		if cp.Backend == "file" && cp.Path == "" {
			sl.ReportError(cp.Path, "Path", "path", "required_if_file", "")
		}
	}, CheckpointConfig{})
	return v
}

// Validate checks field constraints and that source names are unique per stage.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}

	stages := map[string][]Source{
		"extract":  c.Extract.Sources,
		"clean":    c.Clean.Sources,
		"triplets": c.Triplets.Sources,
		"link":     c.Link.Sources,
	}
	for stage, sources := range stages {
		seen := make(map[string]bool, len(sources))
		for _, s := range sources {
			if seen[s.Name] {
				return fmt.Errorf("invalid pipeline config: duplicate %s source %q", stage, s.Name)
			}
			seen[s.Name] = true
		}
	}
	for _, s := range c.Clean.Sources {
		if s.Kind == "" {
			return fmt.Errorf("invalid pipeline config: clean source %q needs a kind", s.Name)
		}
	}
	for _, s := range c.Extract.Sources {
		if len(s.Fields) == 0 {
			return fmt.Errorf("invalid pipeline config: extract source %q has no fields", s.Name)
		}
	}
	return nil
}

// Sources returns the configured sources of a line-based stage.
func (c *Config) Sources(stage string) []Source {
	switch stage {
	case "extract":
		return c.Extract.Sources
	case "clean":
		return c.Clean.Sources
	case "triplets":
		return c.Triplets.Sources
	case "link":
		return c.Link.Sources
	}
	return nil
}

// Source looks up a source by stage and name.
func (c *Config) Source(stage, name string) (Source, bool) {
	for _, s := range c.Sources(stage) {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Timeout returns the knowledge-base request timeout.
func (l LinkConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}
