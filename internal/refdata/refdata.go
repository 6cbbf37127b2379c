// Package refdata exposes the static reference tables bundled with the binary.
package refdata

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

//go:embed data/*.json
var files embed.FS

// UnitCategory groups measurement units shown in the item picker.
type UnitCategory struct {
	Category string   `json:"category"`
	Units    []string `json:"units"`
}

// State is an Indian state or union territory with its GST state code.
type State struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type tables struct {
	bands  []decimal.Decimal
	units  []UnitCategory
	states []State
	byCode map[string]State
	byName map[string]State
}

var (
	loadOnce sync.Once
	loaded   *tables
	loadErr  error
)

func load() (*tables, error) {
	loadOnce.Do(func() {
		t := &tables{byCode: map[string]State{}, byName: map[string]State{}}
		var rates struct {
			Bands []decimal.Decimal `json:"bands"`
		}
		if err := decode("data/gst_rates.json", &rates); err != nil {
			loadErr = err
			return
		}
		t.bands = rates.Bands
		if err := decode("data/units.json", &t.units); err != nil {
			loadErr = err
			return
		}
		if err := decode("data/states.json", &t.states); err != nil {
			loadErr = err
			return
		}
		for _, s := range t.states {
			t.byCode[s.Code] = s
			t.byName[NormalizeName(s.Name)] = s
		}
		loaded = t
	})
	return loaded, loadErr
}

func decode(name string, dest any) error {
	raw, err := files.ReadFile(name)
	if err != nil {
		return fmt.Errorf("refdata: read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("refdata: decode %s: %w", name, err)
	}
	return nil
}

func mustLoad() *tables {
	t, err := load()
	if err != nil {
		panic(err)
	}
	return t
}

// GSTBands returns the standard GST percentage bands in ascending order.
func GSTBands() []decimal.Decimal {
	return append([]decimal.Decimal(nil), mustLoad().bands...)
}

// UnitCategories returns the measurement-unit categories.
func UnitCategories() []UnitCategory {
	return append([]UnitCategory(nil), mustLoad().units...)
}

// States returns every state and union territory.
func States() []State {
	return append([]State(nil), mustLoad().states...)
}

// StateByCode looks up a state by its two digit GST code.
func StateByCode(code string) (State, bool) {
	s, ok := mustLoad().byCode[strings.TrimSpace(code)]
	return s, ok
}

// StateByName looks up a state by name, ignoring case and surrounding blanks.
func StateByName(name string) (State, bool) {
	s, ok := mustLoad().byName[NormalizeName(name)]
	return s, ok
}

// NormalizeName case-folds and collapses blanks so "tamil  nadu " matches "Tamil Nadu".
func NormalizeName(name string) string {
	// Casers keep state, so one is built per call.
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}
