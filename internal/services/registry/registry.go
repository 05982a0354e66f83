// Package registry loads the static mapping of job name to task list from
// TOML definition files. The registry is read-only after startup.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/models"
)

// JobDefinition is one named job: a collection of crawl tasks
type JobDefinition struct {
	Name  string              `toml:"name"`
	Tasks []models.TaskConfig `toml:"tasks"`
}

// JobSummary is the listing shape for the configurations endpoint
type JobSummary struct {
	Name           string `json:"name"`
	ConfigCount    int    `json:"configCount"`
	OutputFileName string `json:"outputFileName"`
}

// Registry holds the loaded job definitions keyed by job name
type Registry struct {
	jobs   map[string]*JobDefinition
	tasks  map[string]taskRef // Task name -> owning job + index; task names are globally unique
	logger arbor.ILogger
}

type taskRef struct {
	jobName string
	index   int
}

// Load reads every *.toml file under dir, validates each task config and
// rejects duplicate task names across all jobs. A missing directory yields an
// empty registry, not an error: ad-hoc submissions still work without it.
func Load(dir string, logger arbor.ILogger) (*Registry, error) {
	r := &Registry{
		jobs:   make(map[string]*JobDefinition),
		tasks:  make(map[string]taskRef),
		logger: logger,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("dir", dir).Msg("Job definitions directory not found, registry is empty")
			return r, nil
		}
		return nil, fmt.Errorf("failed to read job definitions directory: %w", err)
	}

	taskOwner := make(map[string]string) // task name -> job name, for duplicate detection

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read job definition %s: %w", path, err)
		}

		var def JobDefinition
		if err := toml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse job definition %s: %w", path, err)
		}

		if def.Name == "" {
			return nil, fmt.Errorf("job definition %s has no name", path)
		}
		if len(def.Tasks) == 0 {
			return nil, fmt.Errorf("job definition %s (%s) has no tasks", path, def.Name)
		}
		if _, exists := r.jobs[def.Name]; exists {
			return nil, fmt.Errorf("duplicate job name %q in %s", def.Name, path)
		}

		for i := range def.Tasks {
			task := &def.Tasks[i]
			if err := task.Validate(); err != nil {
				return nil, fmt.Errorf("job %s task %d: %w", def.Name, i, err)
			}
			if owner, dup := taskOwner[task.Name]; dup {
				return nil, fmt.Errorf("task name %q in job %s already used by job %s", task.Name, def.Name, owner)
			}
			taskOwner[task.Name] = def.Name
			r.tasks[task.Name] = taskRef{jobName: def.Name, index: i}
		}

		r.jobs[def.Name] = &def

		logger.Debug().
			Str("job", def.Name).
			Int("tasks", len(def.Tasks)).
			Str("file", entry.Name()).
			Msg("Job definition loaded")
	}

	logger.Info().Int("jobs", len(r.jobs)).Str("dir", dir).Msg("Job registry loaded")
	return r, nil
}

// Get returns the task list for a named job
func (r *Registry) Get(name string) ([]models.TaskConfig, bool) {
	def, ok := r.jobs[name]
	if !ok {
		return nil, false
	}
	return def.Tasks, true
}

// List returns a sorted summary of all registered jobs
func (r *Registry) List() []JobSummary {
	summaries := make([]JobSummary, 0, len(r.jobs))
	for name, def := range r.jobs {
		out := def.Tasks[0].OutputFileName
		if out == "" {
			out = name + ".json"
		}
		summaries = append(summaries, JobSummary{
			Name:           name,
			ConfigCount:    len(def.Tasks),
			OutputFileName: filepath.Base(out),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

// FindTask resolves a single task by its globally unique task name,
// returning the task and its owning job name
func (r *Registry) FindTask(taskName string) (models.TaskConfig, string, bool) {
	ref, ok := r.tasks[taskName]
	if !ok {
		return models.TaskConfig{}, "", false
	}
	return r.jobs[ref.jobName].Tasks[ref.index], ref.jobName, true
}

// Len returns the number of registered jobs
func (r *Registry) Len() int {
	return len(r.jobs)
}
