package holon

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RootID identifies the master grid holon. It is never removed and never reparented.
const RootID = "grid-master"

// Type determines which energy flows apply to a holon.
type Type string

const (
	Producer Type = "PRODUCER"
	Consumer Type = "CONSUMER"
	Storage  Type = "STORAGE"
	Prosumer Type = "PROSUMER"
)

// Produces reports whether the type carries a generation potential.
func (t Type) Produces() bool {
	return t == Producer || t == Prosumer
}

// Consumes reports whether the type carries a demand potential.
func (t Type) Consumes() bool {
	return t == Consumer || t == Prosumer
}

// Status is the operating state of a holon.
type Status string

const (
	Operational Status = "OPERATIONAL"
	Maintenance Status = "MAINTENANCE"
	Overloaded  Status = "OVERLOADED"
)

// Profile selects the yield curve of a generating holon.
type Profile string

const (
	Solar   Profile = "SOLAR"
	Wind    Profile = "WIND"
	Thermal Profile = "THERMAL"
	Generic Profile = "GENERIC"
)

// ErrInvalidSpec is returned when a holon spec fails validation.
var ErrInvalidSpec = errors.New("invalid holon spec")

var validate = validator.New()

// Holon is a node of the holarchy: an autonomous energy unit that is also part
// of a larger aggregate.
type Holon struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Type              Type    `json:"type"`
	Profile           Profile `json:"profile"`
	Status            Status  `json:"status"`
	ParentID          string  `json:"parentId,omitempty"`
	BaseCapacity      float64 `json:"baseCapacity"`
	BaseDemand        float64 `json:"baseDemand"`
	CurrentEfficiency float64 `json:"currentEfficiency"`
	History           History `json:"history"`
}

// IsRoot reports whether h is the master grid holon.
func (h Holon) IsRoot() bool {
	return h.ID == RootID
}

// Operational reports whether h contributes to the energy balance.
func (h Holon) Operational() bool {
	return h.Status == Operational
}

// StoredLevel is the storage level recorded by the most recent reading.
func (h Holon) StoredLevel() float64 {
	if last, ok := h.History.Latest(); ok {
		return last.Storage
	}
	return 0
}

// Clone returns a deep copy of h, history included.
func (h Holon) Clone() Holon {
	c := h
	c.History = h.History.Clone()
	return c
}

// Spec is the partial record accepted when provisioning a holon.
// Zero values are filled in by Defaults.
type Spec struct {
	ID                string  `json:"id,omitempty"`
	Name              string  `json:"name" validate:"max=128"`
	Type              Type    `json:"type" validate:"omitempty,oneof=PRODUCER CONSUMER STORAGE PROSUMER"`
	Profile           Profile `json:"profile" validate:"omitempty,oneof=SOLAR WIND THERMAL GENERIC"`
	ParentID          string  `json:"parentId,omitempty"`
	BaseCapacity      float64 `json:"baseCapacity" validate:"gte=0"`
	BaseDemand        float64 `json:"baseDemand" validate:"gte=0"`
	CurrentEfficiency float64 `json:"currentEfficiency" validate:"gte=0,lte=1"`
}

// Validate checks the spec against its struct tags.
func (s Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidSpec, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return nil
}

// Defaults fills the zero fields the way the provisioning form does.
func (s Spec) Defaults() Spec {
	if s.Name == "" {
		s.Name = "New Holon"
	}
	if s.Type == "" {
		s.Type = Consumer
	}
	if s.Profile == "" {
		s.Profile = Generic
	}
	if s.ParentID == "" && s.ID != RootID {
		s.ParentID = RootID
	}
	if s.CurrentEfficiency == 0 {
		s.CurrentEfficiency = 1.0
	}
	return s
}

// New builds an operational holon with an empty history of the given capacity.
func New(s Spec, historyCap int) Holon {
	return Holon{
		ID:                s.ID,
		Name:              s.Name,
		Type:              s.Type,
		Profile:           s.Profile,
		Status:            Operational,
		ParentID:          s.ParentID,
		BaseCapacity:      s.BaseCapacity,
		BaseDemand:        s.BaseDemand,
		CurrentEfficiency: s.CurrentEfficiency,
		History:           NewHistory(historyCap),
	}
}

// InitialTopology is the default holarchy a simulation starts from and resets to.
func InitialTopology() []Spec {
	return []Spec{
		{ID: RootID, Name: "Main District Grid", Type: Prosumer, Profile: Generic,
			BaseCapacity: 1200, BaseDemand: 400, CurrentEfficiency: 0.95},
		{ID: "solar-farm-1", Name: "North Solar Array", Type: Producer, Profile: Solar, ParentID: RootID,
			BaseCapacity: 500, BaseDemand: 10, CurrentEfficiency: 1.0},
		{ID: "wind-turbine-1", Name: "Hilltop Wind", Type: Producer, Profile: Wind, ParentID: RootID,
			BaseCapacity: 350, BaseDemand: 15, CurrentEfficiency: 0.85},
		{ID: "factory-1", Name: "Industrial Zone A", Type: Consumer, Profile: Generic, ParentID: RootID,
			BaseCapacity: 0, BaseDemand: 700, CurrentEfficiency: 0.9},
		{ID: "battery-bank-1", Name: "Tesla Megapack", Type: Storage, Profile: Generic, ParentID: RootID,
			BaseCapacity: 800, BaseDemand: 25, CurrentEfficiency: 0.98},
		{ID: "residential-1", Name: "Subdivision Alpha", Type: Prosumer, Profile: Generic, ParentID: RootID,
			BaseCapacity: 180, BaseDemand: 220, CurrentEfficiency: 0.92},
	}
}
