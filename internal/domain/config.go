package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// NewOrder is the order new cards are introduced in.
type NewOrder int

const (
	NewRandom NewOrder = iota
	NewDue
)

// LeechAction is what happens to a card detected as a leech.
type LeechAction int

const (
	LeechSuspend LeechAction = iota
	LeechTagOnly
)

// NewConfig holds the options for cards that have not graduated yet.
type NewConfig struct {
	// Delays are the learning steps in minutes.
	Delays []float64 `json:"delays" koanf:"delays" validate:"dive,gt=0"`
	// Ints are the graduating intervals in days: normal then early (easy).
	Ints          []int    `json:"ints" koanf:"ints" validate:"len=2,dive,min=1"`
	InitialFactor int      `json:"initial_factor" koanf:"initial_factor" validate:"min=1300"`
	PerDay        int      `json:"per_day" koanf:"per_day" validate:"min=0"`
	Order         NewOrder `json:"order" koanf:"order" validate:"min=0,max=1"`
	Bury          bool     `json:"bury" koanf:"bury"`
}

// LapseConfig holds the options for review cards that were forgotten.
type LapseConfig struct {
	Delays      []float64   `json:"delays" koanf:"delays" validate:"dive,gt=0"`
	Mult        float64     `json:"mult" koanf:"mult" validate:"min=0,max=1"`
	MinInt      int         `json:"min_int" koanf:"min_int" validate:"min=1"`
	LeechFails  int         `json:"leech_fails" koanf:"leech_fails" validate:"min=0"`
	LeechAction LeechAction `json:"leech_action" koanf:"leech_action" validate:"min=0,max=1"`
}

// ReviewConfig holds the options for graduated cards.
type ReviewConfig struct {
	PerDay     int     `json:"per_day" koanf:"per_day" validate:"min=0"`
	Ease4      float64 `json:"ease4" koanf:"ease4" validate:"gte=1"`
	Fuzz       bool    `json:"fuzz" koanf:"fuzz"`
	IvlFct     float64 `json:"ivl_fct" koanf:"ivl_fct" validate:"gt=0"`
	MaxIvl     int     `json:"max_ivl" koanf:"max_ivl" validate:"min=1"`
	HardFactor float64 `json:"hard_factor" koanf:"hard_factor" validate:"gt=0"`
	Bury       bool    `json:"bury" koanf:"bury"`
}

// DeckConfig is a set of options shared by any number of decks.
type DeckConfig struct {
	ID    int64        `json:"id" koanf:"-"`
	Name  string       `json:"name" koanf:"name" validate:"required"`
	New   NewConfig    `json:"new" koanf:"new"`
	Lapse LapseConfig  `json:"lapse" koanf:"lapse"`
	Rev   ReviewConfig `json:"rev" koanf:"rev"`
	// MaxTaken caps the recorded answer time, in seconds.
	MaxTaken int `json:"max_taken" koanf:"max_taken" validate:"min=1"`
}

// DefaultDeckConfig returns the options a fresh collection starts with.
func DefaultDeckConfig() DeckConfig {
	return DeckConfig{
		ID:   1,
		Name: "Default",
		New: NewConfig{
			Delays:        []float64{1, 10},
			Ints:          []int{1, 4},
			InitialFactor: StartingFactor,
			PerDay:        20,
			Order:         NewDue,
		},
		Lapse: LapseConfig{
			Delays:      []float64{10},
			Mult:        0,
			MinInt:      1,
			LeechFails:  8,
			LeechAction: LeechSuspend,
		},
		Rev: ReviewConfig{
			PerDay:     200,
			Ease4:      1.3,
			Fuzz:       true,
			IvlFct:     1,
			MaxIvl:     36500,
			HardFactor: 1.2,
		},
		MaxTaken: 60,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the options against their documented bounds.
func (c *DeckConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid deck config %q: %w", c.Name, err)
	}
	return nil
}

// Validate checks a filtered deck's search settings.
func (f *FilterSpec) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	return nil
}
