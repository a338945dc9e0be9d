// Package draft keeps the order being composed on the device until it is
// confirmed by the backend. It is disposable staging data: one draft, plus the
// last table the waiter selected.
package draft

import (
	"encoding/json"
	"sync"

	"MozoPOS/internal/database/model/setting"
	"MozoPOS/internal/mozoapi/models"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Line struct {
	DishID   string          `json:"dishId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type Draft struct {
	Lines []Line `json:"lines"`
	Note  string `json:"note"`
}

// Composer owns the draft rows. Only a confirmed submission or a logout
// clears them.
type Composer struct {
	db *sqlx.DB
	mu sync.Mutex
}

func New(db *sqlx.DB) *Composer {
	return &Composer{db: db}
}

func (c *Composer) Get() (*Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// Select remembers the table the waiter is working on.
func (c *Composer) Select(tableID string) error {
	if tableID == "" {
		return errors.New("table id is required")
	}
	return setting.Set(c.db, setting.KEY_LAST_TABLE, tableID)
}

func (c *Composer) LastTable() (string, bool, error) {
	return setting.Get(c.db, setting.KEY_LAST_TABLE)
}

// Add appends qty units of dish, merging with an existing line for the same dish.
func (c *Composer) Add(dish models.Dish, qty int) error {
	if dish.ID == "" {
		return errors.New("dish id is required")
	}
	if qty <= 0 {
		return errors.Errorf("quantity must be positive, got %d", qty)
	}
	return c.update(func(d *Draft) {
		for i := range d.Lines {
			if d.Lines[i].DishID == dish.ID {
				d.Lines[i].Quantity += qty
				return
			}
		}
		d.Lines = append(d.Lines, Line{DishID: dish.ID, Name: dish.Name, Price: dish.Price, Quantity: qty})
	})
}

// SetQuantity sets the quantity of a line; zero or less removes it.
func (c *Composer) SetQuantity(dishID string, qty int) error {
	return c.update(func(d *Draft) {
		for i := range d.Lines {
			if d.Lines[i].DishID != dishID {
				continue
			}
			if qty <= 0 {
				d.Lines = append(d.Lines[:i], d.Lines[i+1:]...)
			} else {
				d.Lines[i].Quantity = qty
			}
			return
		}
	})
}

func (c *Composer) Remove(dishID string) error {
	return c.SetQuantity(dishID, 0)
}

func (c *Composer) SetNote(note string) error {
	return c.update(func(d *Draft) {
		d.Note = note
	})
}

// Lines returns the draft as submission lines.
func (c *Composer) Lines() ([]models.OrderLineCreate, string, error) {
	d, err := c.Get()
	if err != nil {
		return nil, "", err
	}
	return d.OrderLines(), d.Note, nil
}

// Clear drops the draft after the backend confirmed the order.
func (c *Composer) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return setting.Delete(c.db, setting.KEY_DRAFT)
}

// Logout drops the draft and the selected table.
func (c *Composer) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return setting.Delete(c.db, setting.KEY_DRAFT, setting.KEY_LAST_TABLE)
}

func (d *Draft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// OrderLines converts the draft into create-order lines.
func (d *Draft) OrderLines() []models.OrderLineCreate {
	lines := make([]models.OrderLineCreate, 0, len(d.Lines))
	for _, l := range d.Lines {
		lines = append(lines, models.OrderLineCreate{DishID: l.DishID, Quantity: l.Quantity})
	}
	return lines
}

func (c *Composer) update(fn func(d *Draft)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := c.load()
	if err != nil {
		return err
	}
	fn(d)
	b, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "failed to encode draft")
	}
	return setting.Set(c.db, setting.KEY_DRAFT, string(b))
}

func (c *Composer) load() (*Draft, error) {
	raw, ok, err := setting.Get(c.db, setting.KEY_DRAFT)
	if err != nil {
		return nil, err
	}
	d := new(Draft)
	if !ok {
		return d, nil
	}
	if err := json.Unmarshal([]byte(raw), d); err != nil {
		return nil, errors.Wrap(err, "failed to decode draft")
	}
	return d, nil
}
