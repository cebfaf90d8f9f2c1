// Package dataset imports gyms, problems, climbers and sessions from a YAML
// file into any climbing.Writer.
package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FILE LAYOUT
// ══════════════════════════════════════════════════════════════════════════════

// Dataset is the YAML layout of an import file.
type Dataset struct {
	Gyms     []Gym     `yaml:"gyms" validate:"dive"`
	Climbers []Climber `yaml:"climbers" validate:"dive"`
	Problems []Problem `yaml:"problems" validate:"dive"`
	Sessions []Session `yaml:"sessions" validate:"dive"`
}

// Gym describes a gym. ID defaults to "g-" + abv.
type Gym struct {
	ID    string `yaml:"id"`
	Abv   string `yaml:"abv" validate:"required"`
	Brand string `yaml:"brand"`
	Name  string `yaml:"name"`
	City  string `yaml:"city"`
	Kind  string `yaml:"kind" validate:"omitempty,oneof=boulder lead"`
}

// Climber describes a climber and their threshold bands, keyed by gym abv.
type Climber struct {
	ID         string           `yaml:"id" validate:"required"`
	Name       string           `yaml:"name"`
	Thresholds map[string][]int `yaml:"thresholds"`
}

// Attribute is a descriptive tag of a problem.
type Attribute struct {
	Category    string `yaml:"category" validate:"required,oneof=handhold footwork type move"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Image       string `yaml:"image"`
}

// Problem describes a problem of a gym declared in the same file.
type Problem struct {
	ID         string      `yaml:"id" validate:"required"`
	Gym        string      `yaml:"gym" validate:"required"`
	Grade      string      `yaml:"grade"`
	Sector     string      `yaml:"sector"`
	Removed    bool        `yaml:"removed"`
	AddedOn    Date        `yaml:"added_on"`
	Attributes []Attribute `yaml:"attributes" validate:"dive"`
}

// Record is one attempt record of a session.
type Record struct {
	Problem  string `yaml:"problem" validate:"required"`
	Attempts int    `yaml:"attempts"`
}

// Session describes one visit of a climber.
type Session struct {
	ID       string   `yaml:"id" validate:"required"`
	Climber  string   `yaml:"climber" validate:"required"`
	Gym      string   `yaml:"gym" validate:"required"`
	Date     Date     `yaml:"date"`
	Duration float64  `yaml:"duration" validate:"gte=0"`
	Tops     []Record `yaml:"tops" validate:"dive"`
	Zones    []Record `yaml:"zones" validate:"dive"`
	Fails    []Record `yaml:"fails" validate:"dive"`
}

// Date is a calendar date written as YYYY-MM-DD.
type Date struct {
	time.Time
}

// UnmarshalYAML parses a YYYY-MM-DD scalar.
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid date %q", node.Line, raw)
	}
	d.Time = t
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSING
// ══════════════════════════════════════════════════════════════════════════════

var validate = validator.New()

// Parse decodes and validates a dataset. Unknown fields are rejected.
func Parse(data []byte) (*Dataset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var ds Dataset
	if err := dec.Decode(&ds); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset: decode: %w", err)
	}
	if err := validate.Struct(&ds); err != nil {
		return nil, shared.WrapError("dataset", "Parse", shared.ErrInvalidInput, "invalid dataset", err)
	}
	return &ds, nil
}

// Load reads and parses the dataset at path.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT
// ══════════════════════════════════════════════════════════════════════════════

// Stats counts the imported entities.
type Stats struct {
	Gyms       int `json:"gyms"`
	Climbers   int `json:"climbers"`
	Thresholds int `json:"thresholds"`
	Problems   int `json:"problems"`
	Sessions   int `json:"sessions"`
	Records    int `json:"records"`
}

// Importer writes datasets through a climbing.Writer.
type Importer struct {
	writer climbing.Writer
	logger *logger.Logger
}

// NewImporter creates an importer.
func NewImporter(writer climbing.Writer, log *logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{writer: writer, logger: log.With(logger.Component("dataset"))}
}

// Import writes gyms first, then climbers with their thresholds, problems
// and sessions. Every write is an upsert, so importing a file twice is a
// no-op. References to gyms are resolved within the file.
func (i *Importer) Import(ctx context.Context, ds *Dataset) (Stats, error) {
	var stats Stats

	gyms := make(map[string]*climbing.Gym, len(ds.Gyms))
	for _, g := range ds.Gyms {
		gym := g.toDomain()
		if _, dup := gyms[gym.Abv]; dup {
			return stats, shared.NewDomainError("dataset", "Import", shared.ErrAlreadyExists, "duplicate gym "+gym.Abv)
		}
		if err := i.writer.SaveGym(ctx, gym); err != nil {
			return stats, fmt.Errorf("save gym %s: %w", gym.Abv, err)
		}
		gyms[gym.Abv] = gym
		stats.Gyms++
	}
	gymOf := func(abv string) (*climbing.Gym, error) {
		g, ok := gyms[strings.ToLower(strings.TrimSpace(abv))]
		if !ok {
			return nil, shared.NewDomainError("dataset", "Import", shared.ErrGymNotFound, "unknown gym "+abv)
		}
		return g, nil
	}

	for _, c := range ds.Climbers {
		id, err := shared.NewClimberID(c.ID)
		if err != nil {
			return stats, err
		}
		if err := i.writer.SaveClimber(ctx, id, c.Name); err != nil {
			return stats, fmt.Errorf("save climber %s: %w", id, err)
		}
		stats.Climbers++

		for abv, positions := range c.Thresholds {
			gym, err := gymOf(abv)
			if err != nil {
				return stats, err
			}
			band, err := climbing.NewThresholdBand(positions...)
			if err != nil {
				return stats, fmt.Errorf("climber %s at %s: %w", id, abv, err)
			}
			if err := i.writer.SetThresholds(ctx, id, gym.ID, band); err != nil {
				return stats, fmt.Errorf("set thresholds %s/%s: %w", id, abv, err)
			}
			stats.Thresholds++
		}
	}

	for _, p := range ds.Problems {
		gym, err := gymOf(p.Gym)
		if err != nil {
			return stats, fmt.Errorf("problem %s: %w", p.ID, err)
		}
		problem := p.toDomain(*gym)
		if err := i.writer.SaveProblem(ctx, problem); err != nil {
			return stats, fmt.Errorf("save problem %s: %w", p.ID, err)
		}
		stats.Problems++
	}

	for _, s := range ds.Sessions {
		gym, err := gymOf(s.Gym)
		if err != nil {
			return stats, fmt.Errorf("session %s: %w", s.ID, err)
		}
		session, err := s.toDomain(*gym)
		if err != nil {
			return stats, fmt.Errorf("session %s: %w", s.ID, err)
		}
		if err := i.writer.SaveSession(ctx, session); err != nil {
			return stats, fmt.Errorf("save session %s: %w", s.ID, err)
		}
		stats.Sessions++
		stats.Records += len(session.Records())
	}

	i.logger.Info("dataset imported",
		logger.Int("gyms", stats.Gyms),
		logger.Int("climbers", stats.Climbers),
		logger.Int("problems", stats.Problems),
		logger.Int("sessions", stats.Sessions),
	)
	return stats, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func (g Gym) toDomain() *climbing.Gym {
	abv := strings.ToLower(strings.TrimSpace(g.Abv))
	id := g.ID
	if id == "" {
		id = "g-" + abv
	}
	kind := climbing.GymKind(g.Kind)
	if kind == "" {
		kind = climbing.GymKindBoulder
	}
	return &climbing.Gym{
		ID:    shared.GymID(id),
		Abv:   abv,
		Brand: g.Brand,
		Name:  g.Name,
		City:  g.City,
		Kind:  kind,
	}
}

func (p Problem) toDomain(gym climbing.Gym) *climbing.Problem {
	attrs := make([]climbing.Attribute, 0, len(p.Attributes))
	for _, a := range p.Attributes {
		attrs = append(attrs, climbing.Attribute{
			Category:    climbing.Category(a.Category),
			Name:        a.Name,
			Description: a.Description,
			Image:       a.Image,
		})
	}
	return &climbing.Problem{
		ID:         shared.ProblemID(p.ID),
		Grade:      p.Grade,
		Gym:        gym,
		SectorID:   p.Sector,
		Attributes: attrs,
		Removed:    p.Removed,
		AddedOn:    p.AddedOn.Time,
	}
}

func (s Session) toDomain(gym climbing.Gym) (*climbing.Session, error) {
	if s.Date.IsZero() {
		return nil, shared.NewDomainError("dataset", "Import", shared.ErrInvalidInput, "session date is required")
	}
	session := &climbing.Session{
		ID:        shared.SessionID(s.ID),
		ClimberID: shared.ClimberID(s.Climber),
		Gym:       gym,
		Date:      s.Date.Time,
		Duration:  s.Duration,
	}
	sections := []struct {
		kind    climbing.AttemptKind
		records []Record
	}{
		{climbing.AttemptFail, s.Fails},
		{climbing.AttemptZone, s.Zones},
		{climbing.AttemptTop, s.Tops},
	}
	for _, sec := range sections {
		for _, r := range sec.records {
			attempts := r.Attempts
			if attempts == 0 {
				attempts = 1
			}
			if err := session.Add(climbing.Attempt{
				ProblemID: shared.ProblemID(r.Problem),
				Kind:      sec.kind,
				Attempts:  attempts,
			}); err != nil {
				return nil, err
			}
		}
	}
	return session, nil
}
