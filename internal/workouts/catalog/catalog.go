package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed exercises.toml
var defaultCatalogToml string

const MuscleGroupOther = "other"

type Exercise struct {
	ID       string `toml:"id" json:"id"`
	Name     string `toml:"name" json:"name"`
	Category string `toml:"-" json:"category"`
}

// Catalog is a read-only mapping from muscle group to known exercises.
type Catalog struct {
	byCategory map[string][]Exercise
	byID       map[string]Exercise
	byName     map[string]Exercise
}

// Default returns the catalog shipped with the service.
func Default() *Catalog {
	c, err := Parse(defaultCatalogToml)
	if err != nil {
		// the embedded document is part of the build
		panic(fmt.Sprintf("parse embedded exercise catalog: %s", err))
	}
	return c
}

func Parse(doc string) (*Catalog, error) {
	raw := make(map[string][]Exercise)
	if _, err := toml.Decode(doc, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		byCategory: make(map[string][]Exercise, len(raw)),
		byID:       make(map[string]Exercise),
		byName:     make(map[string]Exercise),
	}
	for category, exercises := range raw {
		category = strings.ToLower(category)
		for _, ex := range exercises {
			if ex.ID == "" || ex.Name == "" {
				return nil, fmt.Errorf("catalog category [%s]: exercise without id or name", category)
			}
			if _, ok := c.byID[ex.ID]; ok {
				return nil, fmt.Errorf("catalog: duplicate exercise id [%s]", ex.ID)
			}
			ex.Category = category
			c.byCategory[category] = append(c.byCategory[category], ex)
			c.byID[ex.ID] = ex
			c.byName[strings.ToLower(ex.Name)] = ex
		}
	}

	return c, nil
}

func (c *Catalog) Get(id string) (Exercise, bool) {
	ex, ok := c.byID[id]
	return ex, ok
}

// FindByName matches the exercise name case-insensitively.
func (c *Catalog) FindByName(name string) (Exercise, bool) {
	ex, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return ex, ok
}

func (c *Catalog) Categories() []string {
	categories := make([]string, 0, len(c.byCategory))
	for category := range c.byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

func (c *Catalog) List(category string) []Exercise {
	exercises := c.byCategory[strings.ToLower(category)]
	out := make([]Exercise, len(exercises))
	copy(out, exercises)
	return out
}

// muscle group keywords, checked in order
var inferenceRules = []struct {
	muscleGroup string
	keywords    []string
}{
	{"legs", []string{"squat", "lunge", "leg", "calf", "hamstring", "quad", "glute", "hip thrust"}},
	{"back", []string{"deadlift", "row", "pull", "lat ", "lats", "chin"}},
	{"chest", []string{"bench", "chest", "fly", "flye", "push up", "push-up", "dip"}},
	{"shoulders", []string{"shoulder", "overhead", "lateral", "military", "delt", "shrug"}},
	{"arms", []string{"curl", "tricep", "bicep", "skull", "pushdown", "extension"}},
	{"core", []string{"plank", "crunch", "sit up", "sit-up", "ab ", "abs", "core", "twist"}},
}

// InferMuscleGroup guesses the muscle group of an exercise that is not in the catalog.
func InferMuscleGroup(name string) string {
	lower := " " + strings.ToLower(strings.TrimSpace(name)) + " "
	for _, rule := range inferenceRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.muscleGroup
			}
		}
	}
	return MuscleGroupOther
}
