// Package catalog holds the immutable prize and case tables loaded at startup
// and the weighted draw over them.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// MaxDraws is the largest batch a single open may request.
const MaxDraws = 3

// WeightTolerance is how far a case's weight sum may drift from 1 before it is rescaled.
const WeightTolerance = 1e-4

var (
	ErrUnknownCase  = errors.New("unknown case")
	ErrUnknownPrize = errors.New("unknown prize")
	ErrInvalidCount = errors.New("draw count out of range")
	ErrIntegrity    = errors.New("catalog integrity violation")
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Entry struct {
	Name     string
	Value    decimal.Decimal
	Model    string
	Family   string
	Image    string
	External bool
}

type Prize struct {
	Name   string
	Weight float64
}

type Case struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Prizes []Prize

	table Table
}

// Table returns the cumulative distribution built for this case at load time.
func (c *Case) Table() Table {
	return c.table
}

type Promo struct {
	Code      string
	Reward    decimal.Decimal
	ExpiresAt *time.Time
}

func (p Promo) Active(now time.Time) bool {
	return p.ExpiresAt == nil || now.Before(*p.ExpiresAt)
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	entries   map[string]Entry
	cases     map[string]*Case
	caseOrder []string
	promos    map[string]Promo
}

type fileCatalog struct {
	Prizes []struct {
		Name     string `yaml:"name"`
		Value    string `yaml:"value"`
		Model    string `yaml:"model"`
		Family   string `yaml:"family"`
		Image    string `yaml:"image"`
		External bool   `yaml:"external"`
	} `yaml:"prizes"`
	Cases []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Price  string `yaml:"price"`
		Prizes []struct {
			Name   string  `yaml:"name"`
			Weight float64 `yaml:"weight"`
		} `yaml:"prizes"`
	} `yaml:"cases"`
	Promos []struct {
		Code      string     `yaml:"code"`
		Reward    string     `yaml:"reward"`
		ExpiresAt *time.Time `yaml:"expires_at"`
	} `yaml:"promos"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a YAML catalog from path, falling back to the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var raw fileCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{
		entries: make(map[string]Entry, len(raw.Prizes)),
		cases:   make(map[string]*Case, len(raw.Cases)),
		promos:  make(map[string]Promo, len(raw.Promos)),
	}

	for _, p := range raw.Prizes {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: prize without name", ErrIntegrity)
		}
		if _, dup := c.entries[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate prize %q", ErrIntegrity, p.Name)
		}
		value, err := decimal.NewFromString(p.Value)
		if err != nil || value.IsNegative() {
			return nil, fmt.Errorf("%w: prize %q has invalid value %q", ErrIntegrity, p.Name, p.Value)
		}
		c.entries[p.Name] = Entry{
			Name:     p.Name,
			Value:    value.Round(2),
			Model:    p.Model,
			Family:   p.Family,
			Image:    p.Image,
			External: p.External,
		}
	}

	for _, rc := range raw.Cases {
		if rc.ID == "" {
			return nil, fmt.Errorf("%w: case without id", ErrIntegrity)
		}
		if _, dup := c.cases[rc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate case %q", ErrIntegrity, rc.ID)
		}
		price, err := decimal.NewFromString(rc.Price)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("%w: case %q has invalid price %q", ErrIntegrity, rc.ID, rc.Price)
		}
		if len(rc.Prizes) == 0 {
			return nil, fmt.Errorf("%w: case %q has no prizes", ErrIntegrity, rc.ID)
		}

		cs := &Case{ID: rc.ID, Name: rc.Name, Price: price.Round(2)}
		for _, p := range rc.Prizes {
			if _, ok := c.entries[p.Name]; !ok {
				return nil, fmt.Errorf("%w: case %q references unknown prize %q", ErrIntegrity, rc.ID, p.Name)
			}
			if p.Weight <= 0 || math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
				return nil, fmt.Errorf("%w: case %q prize %q has invalid weight", ErrIntegrity, rc.ID, p.Name)
			}
			cs.Prizes = append(cs.Prizes, Prize{Name: p.Name, Weight: p.Weight})
		}
		cs.Prizes = Normalize(cs.Prizes)
		cs.table = NewTable(cs.Prizes)

		c.cases[rc.ID] = cs
		c.caseOrder = append(c.caseOrder, rc.ID)
	}

	for _, rp := range raw.Promos {
		code := NormalizeCode(rp.Code)
		if code == "" {
			return nil, fmt.Errorf("%w: promo without code", ErrIntegrity)
		}
		reward, err := decimal.NewFromString(rp.Reward)
		if err != nil || !reward.IsPositive() {
			return nil, fmt.Errorf("%w: promo %q has invalid reward %q", ErrIntegrity, code, rp.Reward)
		}
		c.promos[code] = Promo{Code: code, Reward: reward.Round(2), ExpiresAt: rp.ExpiresAt}
	}

	return c, nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *Catalog) Entry(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

func (c *Catalog) Case(id string) (*Case, bool) {
	cs, ok := c.cases[id]
	return cs, ok
}

// Cases returns the cases in file order.
func (c *Catalog) Cases() []*Case {
	out := make([]*Case, 0, len(c.caseOrder))
	for _, id := range c.caseOrder {
		out = append(out, c.cases[id])
	}
	return out
}

func (c *Catalog) Promo(code string) (Promo, bool) {
	p, ok := c.promos[NormalizeCode(code)]
	return p, ok
}

// Entries returns every prize sorted by name.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
