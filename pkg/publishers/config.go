package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// Supported publisher types.
	TypeQueue = "queue"
	TypeHTTP  = "http"

	// Supported queue providers.
	QueueProviderAWSSQS = "aws-sqs"
	QueueProviderAWSSNS = "aws-sns"
	QueueProviderGCP    = "gcp"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

// configFile represents the structure of the publishers configuration file.
type configFile struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// PublisherConfig represents a single publisher entry declared in config files.
type PublisherConfig struct {
	ID      string       `json:"id" yaml:"id" validate:"required"`
	Type    string       `json:"type" yaml:"type" validate:"required,oneof=queue http"`
	Enabled *bool        `json:"enabled" yaml:"enabled"`
	Events  []string     `json:"events" yaml:"events" validate:"dive,oneof=article.persisted run.completed"`
	Queue   *QueueConfig `json:"queue" yaml:"queue" validate:"required_if=Type queue"`
	HTTP    *HTTPConfig  `json:"http" yaml:"http" validate:"required_if=Type http"`
}

// QueueConfig selects a cloud queue provider.
type QueueConfig struct {
	Provider string     `json:"provider" yaml:"provider" validate:"required,oneof=aws-sqs aws-sns gcp"`
	SQS      *SQSConfig `json:"aws" yaml:"aws" validate:"required_if=Provider aws-sqs"`
	SNS      *SNSConfig `json:"sns" yaml:"sns" validate:"required_if=Provider aws-sns"`
	GCP      *GCPConfig `json:"gcp" yaml:"gcp" validate:"required_if=Provider gcp"`
}

// AWSCredentials are optional static credentials. When unset the default
// AWS credential chain is used.
type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key" validate:"required_with=AccessKeyID"`
}

// SQSConfig holds AWS SQS settings.
type SQSConfig struct {
	QueueURL       string `json:"uri" yaml:"uri" validate:"required,url"`
	Region         string `json:"region" yaml:"region" validate:"required"`
	AWSCredentials `yaml:",inline"`
}

// SNSConfig holds AWS SNS settings.
type SNSConfig struct {
	TopicARN       string `json:"topic_arn" yaml:"topic_arn" validate:"required,startswith=arn:"`
	Region         string `json:"region" yaml:"region" validate:"required"`
	AWSCredentials `yaml:",inline"`
}

// GCPConfig holds Pub/Sub topic settings.
type GCPConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id" validate:"required"`
	Topic           string `json:"topic" yaml:"topic" validate:"required"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// HTTPConfig holds generic HTTP sink settings.
type HTTPConfig struct {
	URL            string            `json:"url" yaml:"url" validate:"required,url"`
	Method         string            `json:"method" yaml:"method" validate:"oneof=POST PUT PATCH"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=1,lte=300"`
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg PublisherConfig) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// ConfigRegistry materializes publisher definitions loaded from config files.
type ConfigRegistry struct {
	mu         sync.RWMutex
	publishers []PublisherConfig
	idx        map[string]PublisherConfig
}

var (
	validateOnce sync.Once
	structCheck  *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		structCheck = validator.New(validator.WithRequiredStructEnabled())
	})
	return structCheck
}

// LoadConfig loads the publisher registry from a YAML/JSON file. Environment
// references are expanded before decoding so secrets can stay out of the file.
func LoadConfig(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}
	return ParseConfig([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// ParseConfig decodes, sanitizes and validates publisher entries.
func ParseConfig(data []byte, ext string) (*ConfigRegistry, error) {
	file, err := decodeConfig(data, ext)
	if err != nil {
		return nil, err
	}
	if len(file.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	reg := &ConfigRegistry{
		publishers: make([]PublisherConfig, 0, len(file.Publishers)),
		idx:        make(map[string]PublisherConfig, len(file.Publishers)),
	}
	for i := range file.Publishers {
		cfg := sanitizePublisherConfig(file.Publishers[i])
		if err := validatePublisherConfig(cfg); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		reg.publishers = append(reg.publishers, cfg)
		reg.idx[cfg.ID] = cfg
	}
	return reg, nil
}

// decodeConfig picks the decoder by extension, trying both when unknown.
func decodeConfig(data []byte, ext string) (configFile, error) {
	decoders := map[string]func([]byte, any) error{
		".yaml": yaml.Unmarshal,
		".yml":  yaml.Unmarshal,
		".json": json.Unmarshal,
	}
	order := []string{".yaml", ".json"}
	if ext = strings.ToLower(strings.TrimSpace(ext)); ext != "" {
		if _, ok := decoders[ext]; !ok {
			return configFile{}, fmt.Errorf("publishers file extension %q not supported", ext)
		}
		order = []string{ext}
	}

	var errs []error
	for _, e := range order {
		var file configFile
		if err := decoders[e](data, &file); err != nil {
			errs = append(errs, fmt.Errorf("decode %s publishers: %w", strings.TrimPrefix(e, "."), err))
			continue
		}
		return file, nil
	}
	return configFile{}, errors.Join(errs...)
}

// sanitizePublisherConfig trims and normalizes the publisher config fields.
func sanitizePublisherConfig(cfg PublisherConfig) PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	for i, e := range cfg.Events {
		cfg.Events[i] = strings.ToLower(strings.TrimSpace(e))
	}

	if cfg.Queue != nil {
		qc := *cfg.Queue
		qc.Provider = strings.ToLower(strings.TrimSpace(qc.Provider))
		if qc.SQS != nil {
			s := *qc.SQS
			s.QueueURL = strings.TrimSpace(s.QueueURL)
			s.Region = strings.TrimSpace(s.Region)
			s.AWSCredentials = sanitizeCredentials(s.AWSCredentials)
			qc.SQS = &s
		}
		if qc.SNS != nil {
			s := *qc.SNS
			s.TopicARN = strings.TrimSpace(s.TopicARN)
			s.Region = strings.TrimSpace(s.Region)
			s.AWSCredentials = sanitizeCredentials(s.AWSCredentials)
			qc.SNS = &s
		}
		if qc.GCP != nil {
			g := *qc.GCP
			g.ProjectID = strings.TrimSpace(g.ProjectID)
			g.Topic = strings.TrimSpace(g.Topic)
			g.CredentialsFile = strings.TrimSpace(g.CredentialsFile)
			qc.GCP = &g
		}
		cfg.Queue = &qc
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = strings.TrimSpace(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		c.Headers = sanitizeHeaders(c.Headers)
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		cfg.HTTP = &c
	}
	return cfg
}

func sanitizeCredentials(c AWSCredentials) AWSCredentials {
	c.AccessKeyID = strings.TrimSpace(c.AccessKeyID)
	c.SecretAccessKey = strings.TrimSpace(c.SecretAccessKey)
	return c
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validatePublisherConfig runs the struct rules and reports every violation.
func validatePublisherConfig(cfg PublisherConfig) error {
	err := configValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("publisher %q: %w", cfg.ID, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("publisher %q: %s", cfg.ID, strings.Join(msgs, "; "))
}

// ByID returns the publisher config by id.
func (r *ConfigRegistry) ByID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return PublisherConfig{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[id]
	return cfg, ok
}

// All returns all configured publishers.
func (r *ConfigRegistry) All() []PublisherConfig {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PublisherConfig, len(r.publishers))
	copy(out, r.publishers)
	return out
}

// Enabled returns publishers that are enabled.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	all := r.All()
	out := make([]PublisherConfig, 0, len(all))
	for _, cfg := range all {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}
