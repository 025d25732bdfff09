package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"terminal-telemetry/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terminal_test.sqlite")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func testDevice(address int) *model.SlaveDevice {
	return &model.SlaveDevice{
		Address:  address,
		Name:     "gauge",
		Baudrate: 9600,
		Port:     "/dev/ttyUSB0",
		DataBits: 8,
		Parity:   "N",
		StopBits: 1,
		Active:   true,
	}
}

func TestDeviceCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	if err := d.AddDevice(ctx, testDevice(5)); err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}
	if err := d.AddDevice(ctx, testDevice(5)); !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate address: want ErrValidation, got %v", err)
	}

	got, err := d.GetDevice(ctx, 5)
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got.Name != "gauge" {
		t.Fatalf("expected device name %q, got %q", "gauge", got.Name)
	}

	got.Name = "radar gauge"
	got.Active = false
	if err := d.UpdateDevice(ctx, got); err != nil {
		t.Fatalf("UpdateDevice failed: %v", err)
	}
	got, err = d.GetDevice(ctx, 5)
	if err != nil {
		t.Fatalf("GetDevice after update failed: %v", err)
	}
	if got.Name != "radar gauge" || got.Active {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := d.DeleteDevice(ctx, 5); err != nil {
		t.Fatalf("DeleteDevice failed: %v", err)
	}
	if _, err := d.GetDevice(ctx, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: want ErrNotFound, got %v", err)
	}
	if err := d.DeleteDevice(ctx, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: want ErrNotFound, got %v", err)
	}
}

func TestDeviceValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	cases := []struct {
		name   string
		mutate func(*model.SlaveDevice)
	}{
		{"address zero", func(dev *model.SlaveDevice) { dev.Address = 0 }},
		{"address too high", func(dev *model.SlaveDevice) { dev.Address = 248 }},
		{"empty name", func(dev *model.SlaveDevice) { dev.Name = "" }},
		{"odd baudrate", func(dev *model.SlaveDevice) { dev.Baudrate = 1200 }},
		{"bad parity", func(dev *model.SlaveDevice) { dev.Parity = "M" }},
		{"bad stop bits", func(dev *model.SlaveDevice) { dev.StopBits = 3 }},
		{"bad data bits", func(dev *model.SlaveDevice) { dev.DataBits = 6 }},
	}
	for _, tc := range cases {
		dev := testDevice(10)
		tc.mutate(dev)
		if err := d.AddDevice(ctx, dev); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: want ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestListActiveDevicesOrdersByAddress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	for _, addr := range []int{9, 2, 5} {
		if err := d.AddDevice(ctx, testDevice(addr)); err != nil {
			t.Fatalf("AddDevice %d failed: %v", addr, err)
		}
	}
	inactive := testDevice(3)
	inactive.Active = false
	if err := d.AddDevice(ctx, inactive); err != nil {
		t.Fatalf("AddDevice inactive failed: %v", err)
	}

	devs, err := d.ListActiveDevices(ctx)
	if err != nil {
		t.Fatalf("ListActiveDevices failed: %v", err)
	}
	if len(devs) != 3 {
		t.Fatalf("expected 3 active devices, got %d", len(devs))
	}
	for i, want := range []int{2, 5, 9} {
		if devs[i].Address != want {
			t.Fatalf("device %d: expected address %d, got %d", i, want, devs[i].Address)
		}
	}
}

func TestCommStatusDoesNotAffectPollPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	if err := d.AddDevice(ctx, testDevice(7)); err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}

	// A missed cycle records unreachability but must not pull the
	// device out of the poll plan, or it could never recover.
	if err := d.SetDeviceCommStatus(ctx, 7, false); err != nil {
		t.Fatalf("SetDeviceCommStatus failed: %v", err)
	}

	devs, err := d.ListActiveDevices(ctx)
	if err != nil {
		t.Fatalf("ListActiveDevices failed: %v", err)
	}
	if len(devs) != 1 || devs[0].Address != 7 {
		t.Fatalf("device 7 missing from poll plan after comm failure: %+v", devs)
	}

	got, err := d.GetDevice(ctx, 7)
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got.Connected {
		t.Fatal("expected connected=false after failed cycle")
	}
	if !got.Active {
		t.Fatal("comm status must not touch the operator active flag")
	}

	if err := d.SetDeviceCommStatus(ctx, 7, true); err != nil {
		t.Fatalf("SetDeviceCommStatus recover failed: %v", err)
	}
	got, err = d.GetDevice(ctx, 7)
	if err != nil {
		t.Fatalf("GetDevice after recovery failed: %v", err)
	}
	if !got.Connected {
		t.Fatal("expected connected=true after recovery")
	}
}

func TestMappingCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	if err := d.AddDevice(ctx, testDevice(2)); err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}

	m := &model.RegisterMapping{
		SlaveAddress:    2,
		RegisterAddress: 10,
		RegisterType:    model.RegisterHolding,
		FunctionCode:    3,
		EntityKind:      model.KindStorageTank,
		EntityID:        1,
		Column:          "CurrentVolume",
		ScaleFactor:     0.1,
	}
	if err := d.AddMapping(ctx, m); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	if m.MappingID == 0 {
		t.Fatal("expected generated mapping id")
	}

	// Function code must agree with the register type.
	bad := *m
	bad.MappingID = 0
	bad.FunctionCode = 4
	if err := d.AddMapping(ctx, &bad); !errors.Is(err, ErrValidation) {
		t.Fatalf("mismatched function code: want ErrValidation, got %v", err)
	}

	// Mappings may only reference known devices.
	orphan := *m
	orphan.MappingID = 0
	orphan.SlaveAddress = 99
	if err := d.AddMapping(ctx, &orphan); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown device: want ErrValidation, got %v", err)
	}

	m.Column = "CurrentMass"
	if err := d.UpdateMapping(ctx, m); err != nil {
		t.Fatalf("UpdateMapping failed: %v", err)
	}
	got, err := d.GetMapping(ctx, m.MappingID)
	if err != nil {
		t.Fatalf("GetMapping failed: %v", err)
	}
	if got.Column != "CurrentMass" {
		t.Fatalf("expected column CurrentMass, got %q", got.Column)
	}

	if err := d.DeleteMapping(ctx, m.MappingID); err != nil {
		t.Fatalf("DeleteMapping failed: %v", err)
	}
	if _, err := d.GetMapping(ctx, m.MappingID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: want ErrNotFound, got %v", err)
	}
}

func TestListActiveMappingsPollOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	for _, addr := range []int{2, 5} {
		if err := d.AddDevice(ctx, testDevice(addr)); err != nil {
			t.Fatalf("AddDevice %d failed: %v", addr, err)
		}
	}
	rows := []struct {
		slave int
		reg   uint16
	}{
		{5, 0}, {2, 30}, {2, 10}, {5, 20},
	}
	for _, r := range rows {
		err := d.AddMapping(ctx, &model.RegisterMapping{
			SlaveAddress:    r.slave,
			RegisterAddress: r.reg,
			RegisterType:    model.RegisterInput,
			FunctionCode:    4,
			EntityKind:      model.KindLoadingArm,
			EntityID:        1,
			Column:          "FlowRate",
			ScaleFactor:     1,
		})
		if err != nil {
			t.Fatalf("AddMapping %+v failed: %v", r, err)
		}
	}

	got, err := d.ListActiveMappings(ctx)
	if err != nil {
		t.Fatalf("ListActiveMappings failed: %v", err)
	}
	want := []struct {
		slave int
		reg   uint16
	}{
		{2, 10}, {2, 30}, {5, 0}, {5, 20},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d mappings, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].SlaveAddress != want[i].slave || got[i].RegisterAddress != want[i].reg {
			t.Fatalf("mapping %d: expected (%d, %d), got (%d, %d)",
				i, want[i].slave, want[i].reg, got[i].SlaveAddress, got[i].RegisterAddress)
		}
	}
}
