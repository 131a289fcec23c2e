// Package config holds the harness configuration: tool paths, test globs,
// timeouts, comparison modes and the grading rubric.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tubegrade/tubegrade/grade"
	"github.com/tubegrade/tubegrade/oracle"
)

// Config is the merged configuration for one run.
type Config struct {
	// Executable is the make target and the compiler under test.
	Executable string `yaml:"executable"`
	Reference  string `yaml:"reference"`
	Engine     string `yaml:"engine"`
	IREngine   string `yaml:"ir_engine"`
	// WorkDir is the submission directory; artifacts land here too.
	WorkDir string `yaml:"workdir"`

	Tests      []string `yaml:"tests"`
	Extra      []string `yaml:"extra"`
	ExtraFlags []string `yaml:"extra_flags"`

	NeededFiles []string `yaml:"needed_files"`
	// ReadmeGlob must match exactly one file in WorkDir.
	ReadmeGlob string `yaml:"readme_glob"`

	TestTimeout time.Duration `yaml:"test_timeout"`
	MakeTimeout time.Duration `yaml:"make_timeout"`

	IR       bool `yaml:"ir"`
	Final    bool `yaml:"final"`
	Optimize bool `yaml:"optimize"`
	// OptimizeSubmission also passes -O to the compiler under test.
	OptimizeSubmission  bool                    `yaml:"optimize_submission"`
	ReferenceOverBudget oracle.OverBudgetPolicy `yaml:"reference_over_budget"`

	Rubric grade.Rubric `yaml:"rubric"`
}

// Default returns the configuration for the optimisation project.
func Default() Config {
	return Config{
		Executable: "tube8",
		Reference:  "Test_Suite/reference_tube8",
		Engine:     "../TubeCode/tubecode",
		IREngine:   "../TubeCode/TubeIC",
		WorkDir:    ".",
		Tests: []string{
			"Test_Suite/good*declare*.tube",
			"Test_Suite/fail*.tube",
			"Test_Suite/*optim*.tube",
		},
		Extra:               []string{"Test_Suite/extra*.tube"},
		ExtraFlags:          []string{"-d"},
		NeededFiles:         []string{"example.tube", "Makefile"},
		ReadmeGlob:          "README*",
		TestTimeout:         5 * time.Second,
		MakeTimeout:         20 * time.Second,
		Final:               true,
		Optimize:            true,
		ReferenceOverBudget: oracle.PolicyFault,
		Rubric:              grade.DefaultRubric(),
	}
}

// Load reads, parses, normalizes, and validates a config file. An empty
// path yields the validated defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		Normalize(&cfg)
		return cfg, Validate(&cfg)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes data on top of Default. Fields absent from the document
// keep their default; unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("parse config: multiple YAML documents are not supported")
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Normalize trims paths and fills empty optional fields.
func Normalize(cfg *Config) {
	cfg.Executable = strings.TrimSpace(cfg.Executable)
	cfg.Reference = strings.TrimSpace(cfg.Reference)
	cfg.Engine = strings.TrimSpace(cfg.Engine)
	cfg.IREngine = strings.TrimSpace(cfg.IREngine)
	cfg.WorkDir = strings.TrimSpace(cfg.WorkDir)
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	cfg.ReferenceOverBudget = oracle.OverBudgetPolicy(strings.ToLower(strings.TrimSpace(string(cfg.ReferenceOverBudget))))
	if cfg.ReferenceOverBudget == "" {
		cfg.ReferenceOverBudget = oracle.PolicyFault
	}
	for i := range cfg.Rubric.Criteria {
		c := &cfg.Rubric.Criteria[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Mode = grade.Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
		if c.Mode == "" {
			c.Mode = grade.AllOrNothing
		}
	}
}
