package hotplug

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const lsusbFixture = `Bus 001 Device 002: ID 8087:0024 Intel Corp. Integrated Rate Matching Hub
Bus 001 Device 004: ID 04a9:327b Canon, Inc. SELPHY CP1300
Bus 002 Device 003: ID 1343:0003 DNP QW410
Bus 002 Device 005: ID 046d:c52b Logitech, Inc. Unifying Receiver
`

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func loadTestProfiles(t *testing.T) ProfileTable {
	t.Helper()
	profiles, err := LoadProfiles("")
	require.NoError(t, err)
	return profiles
}

func TestLoadProfilesEmbeddedDefaults(t *testing.T) {
	t.Parallel()
	profiles := loadTestProfiles(t)

	p, ok := profiles["04a9:327b"]
	require.True(t, ok)
	require.Equal(t, "Canon SELPHY CP1300", p.Name)
	require.Equal(t, "raw", p.PPD)

	_, ok = profiles["1343:0003"]
	require.True(t, ok)
}

func TestLoadProfilesFromFile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid",
			yaml: "printers:\n  \"dead:beef\":\n    name: Test Printer\n    model: generic_usb_printer_class\n    ppd: raw\n",
		},
		{
			name:    "missing name",
			yaml:    "printers:\n  \"dead:beef\":\n    model: generic_usb_printer_class\n",
			wantErr: "name is required",
		},
		{
			name:    "unknown model class",
			yaml:    "printers:\n  \"dead:beef\":\n    name: X\n    model: laser\n",
			wantErr: "unknown model class",
		},
		{
			name:    "empty table",
			yaml:    "printers: {}\n",
			wantErr: "empty",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "profiles.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o600))

			_, err := LoadProfiles(path)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestScannerParsesSupportedPrinters(t *testing.T) {
	t.Parallel()
	s := NewLsusbScanner(loadTestProfiles(t), discardLogger())
	s.listUSB = func(ctx context.Context) (string, error) { return lsusbFixture, nil }

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2, "unsupported devices must be skipped")

	selphy := devices[0]
	require.Equal(t, "usb:04a9:327b@001/004", selphy.ID)
	require.Equal(t, "Canon SELPHY CP1300", selphy.Name)
	require.Equal(t, "rig_canon_selphy_cp1300", selphy.QueueName)
	require.Equal(t, "usb://Canon/Canon%20SELPHY%20CP1300", selphy.URI)
	require.Equal(t, "raw", selphy.PPD)

	dnp := devices[1]
	require.Equal(t, "usb:1343:0003@002/003", dnp.ID)
	require.Equal(t, "rig_dnp_qw410", dnp.QueueName)
}

func TestScannerReplugChangesIdentity(t *testing.T) {
	t.Parallel()
	s := NewLsusbScanner(loadTestProfiles(t), discardLogger())
	s.listUSB = func(ctx context.Context) (string, error) {
		return "Bus 001 Device 007: ID 04a9:327b Canon, Inc. SELPHY CP1300\n", nil
	}

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "usb:04a9:327b@001/007", devices[0].ID)
}

func TestScannerError(t *testing.T) {
	t.Parallel()
	s := NewLsusbScanner(loadTestProfiles(t), discardLogger())
	s.listUSB = func(ctx context.Context) (string, error) {
		return "", errors.New("exec: \"lsusb\": executable file not found")
	}

	_, err := s.Scan(context.Background())
	require.ErrorContains(t, err, "lsusb")
}
