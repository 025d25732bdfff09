package registry

import (
	"context"

	dbpkg "terminal-telemetry/internal/db"
	"terminal-telemetry/internal/model"
)

// Client exposes a stable API for third-party packages to manage the
// device and mapping registry. Placed in devices.go so that all other
// files can reference it.
type Client struct{ db *dbpkg.DB }

// Open opens the SQLite database (runs migrations) and returns a client.
func Open(path string) (*Client, error) {
	d, err := dbpkg.Open(path)
	if err != nil {
		return nil, err
	}
	return &Client{db: d}, nil
}

// Close closes the underlying DB.
func (c *Client) Close() error { return c.db.Close() }

// Failure classes callers can match with errors.Is.
var (
	ErrValidation = dbpkg.ErrValidation
	ErrNotFound   = dbpkg.ErrNotFound
)

// --------------------
// Device DTOs and converters
// --------------------

// Device describes one RTU slave. Connected is maintained by the
// polling service and is read-only through this client.
type Device struct {
	Address   int
	Name      string
	Baudrate  int
	Port      string
	DataBits  int
	Parity    string
	StopBits  int
	Active    bool
	Connected bool
}

func toModelDevice(d *Device) *model.SlaveDevice {
	if d == nil {
		return nil
	}
	return &model.SlaveDevice{
		Address:  d.Address,
		Name:     d.Name,
		Baudrate: d.Baudrate,
		Port:     d.Port,
		DataBits: d.DataBits,
		Parity:   d.Parity,
		StopBits: d.StopBits,
		Active:   d.Active,
	}
}

func fromModelDevice(d *model.SlaveDevice) *Device {
	if d == nil {
		return nil
	}
	return &Device{
		Address:   d.Address,
		Name:      d.Name,
		Baudrate:  d.Baudrate,
		Port:      d.Port,
		DataBits:  d.DataBits,
		Parity:    d.Parity,
		StopBits:  d.StopBits,
		Active:    d.Active,
		Connected: d.Connected,
	}
}

// --------------------
// Device management (CRUD)
// --------------------

func (c *Client) CreateDevice(ctx context.Context, d *Device) error {
	return c.db.AddDevice(ctx, toModelDevice(d))
}

func (c *Client) GetDevice(ctx context.Context, address int) (*Device, error) {
	dev, err := c.db.GetDevice(ctx, address)
	if err != nil {
		return nil, err
	}
	return fromModelDevice(dev), nil
}

func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	list, err := c.db.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(list))
	for i := range list {
		out = append(out, *fromModelDevice(&list[i]))
	}
	return out, nil
}

func (c *Client) UpdateDevice(ctx context.Context, d *Device) error {
	return c.db.UpdateDevice(ctx, toModelDevice(d))
}

func (c *Client) DeleteDevice(ctx context.Context, address int) error {
	return c.db.DeleteDevice(ctx, address)
}
