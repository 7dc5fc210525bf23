package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/tillsync/internal/lock"
	"github.com/roach88/tillsync/internal/model"
)

type memberWire struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	RFIDToken *string `json:"rfid_token"`
}

type productWire struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Barcode *string      `json:"barcode"`
	Price   *model.Money `json:"price"`
}

type configWire struct {
	Lock              json.RawMessage `json:"lock"`
	ShowMemberBalance bool            `json:"show_member_balance"`
}

// FetchMembers returns the full member collection of the tenant.
func (g *Gateway) FetchMembers(ctx context.Context) ([]model.Member, error) {
	const op = "fetch members"

	var wire []memberWire
	if err := g.getJSON(ctx, op, "/members", &wire); err != nil {
		return nil, err
	}

	members := make([]model.Member, 0, len(wire))
	for i, w := range wire {
		if w.ID == "" {
			return nil, &TransientError{Op: op, Err: fmt.Errorf("member[%d]: missing id", i)}
		}
		m := model.Member{ID: w.ID, Name: w.Name}
		if w.RFIDToken != nil {
			m.RFIDToken = *w.RFIDToken
		}
		members = append(members, m)
	}
	return members, nil
}

// FetchProducts returns the full product collection of the tenant.
// Prices may arrive as JSON strings or numbers; both are parsed as decimals.
func (g *Gateway) FetchProducts(ctx context.Context) ([]model.Product, error) {
	const op = "fetch products"

	var wire []productWire
	if err := g.getJSON(ctx, op, "/products", &wire); err != nil {
		return nil, err
	}

	products := make([]model.Product, 0, len(wire))
	for i, w := range wire {
		if w.ID == "" {
			return nil, &TransientError{Op: op, Err: fmt.Errorf("product[%d]: missing id", i)}
		}
		if w.Price == nil {
			return nil, &TransientError{Op: op, Err: fmt.Errorf("product %s: missing price", w.ID)}
		}
		p := model.Product{ID: w.ID, Name: w.Name, Price: *w.Price}
		if w.Barcode != nil {
			p.Barcode = *w.Barcode
		}
		products = append(products, p)
	}
	return products, nil
}

// FetchConfig returns the device configuration. An absent or null lock
// means "no lock". A lock configuration that fails schema validation is
// reported as a *TransientError so the last cached configuration stays in
// effect.
func (g *Gateway) FetchConfig(ctx context.Context) (model.DeviceConfig, error) {
	const op = "fetch config"

	var wire configWire
	if err := g.getJSON(ctx, op, "/config", &wire); err != nil {
		return model.DeviceConfig{}, err
	}

	cfg := model.DeviceConfig{ShowMemberBalance: wire.ShowMemberBalance}
	raw := bytes.TrimSpace(wire.Lock)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return cfg, nil
	}

	if err := lock.Validate(raw); err != nil {
		return model.DeviceConfig{}, &TransientError{Op: op, Err: err}
	}
	var lc model.LockConfig
	if err := json.Unmarshal(raw, &lc); err != nil {
		return model.DeviceConfig{}, &TransientError{Op: op, Err: err}
	}
	cfg.Lock = &lc
	return cfg, nil
}
