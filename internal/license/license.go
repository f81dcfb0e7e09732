package license

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrExpired = errors.New("trial period has expired")
var ErrInvalidCode = errors.New("invalid activation code")

const dateLayout = "2006-01-02"

// Manager tracks the trial period and activation state in a small local
// SQLite database, keyed to the machine it was installed on.
type Manager struct {
	db        *sql.DB
	secret    string
	trialDays int
	machineID string
}

func Open(ctx context.Context, path string, secret string, trialDays int) (*Manager, error) {
	if trialDays < 1 {
		trialDays = 30
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS license_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &Manager{db: db, secret: secret, trialDays: trialDays, machineID: machineID()}
	if err := m.ensureInstalled(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func (m *Manager) MachineID() string {
	return m.machineID
}

func (m *Manager) ensureInstalled(ctx context.Context) error {
	if _, err := m.getMeta(ctx, "install_date"); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	now := time.Now().UTC()
	expiry := now.AddDate(0, 0, m.trialDays)
	for key, value := range map[string]string{
		"install_date": now.Format(dateLayout),
		"expiry_date":  expiry.Format(dateLayout),
		"machine_id":   m.machineID,
		"activated":    "false",
	} {
		if err := m.setMeta(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

type State struct {
	Activated     bool
	DaysRemaining int
	Expired       bool
	MachineID     string
}

func (m *Manager) Status(ctx context.Context) (State, error) {
	state := State{MachineID: m.machineID}

	activated, err := m.getMeta(ctx, "activated")
	if err != nil {
		return state, err
	}
	if activated == "true" {
		state.Activated = true
		return state, nil
	}

	expiryRaw, err := m.getMeta(ctx, "expiry_date")
	if err != nil {
		return state, err
	}
	expiry, err := time.Parse(dateLayout, expiryRaw)
	if err != nil {
		return state, fmt.Errorf("corrupt expiry date: %w", err)
	}

	remaining := int(time.Until(expiry.Add(24*time.Hour)) / (24 * time.Hour))
	if remaining < 0 {
		remaining = 0
	}
	state.DaysRemaining = remaining
	state.Expired = remaining == 0
	return state, nil
}

// Require returns ErrExpired when the trial ran out and the install was
// never activated.
func (m *Manager) Require(ctx context.Context) error {
	state, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if !state.Activated && state.Expired {
		return ErrExpired
	}
	return nil
}

func (m *Manager) Activate(ctx context.Context, code string) error {
	expected := ActivationCode(m.secret, m.machineID)
	if !hmac.Equal([]byte(normalizeCode(code)), []byte(normalizeCode(expected))) {
		return ErrInvalidCode
	}
	if err := m.setMeta(ctx, "activated", "true"); err != nil {
		return err
	}
	return m.setMeta(ctx, "activation_date", time.Now().UTC().Format(dateLayout))
}

// ActivationCode derives the code for a machine as an HMAC over the machine
// id, formatted XXXX-XXXX-XXXX. The vendor runs the same derivation offline
// to issue codes.
func ActivationCode(secret string, machineID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(machineID))
	digest := strings.ToUpper(hex.EncodeToString(mac.Sum(nil))[:12])
	return fmt.Sprintf("%s-%s-%s", digest[0:4], digest[4:8], digest[8:12])
}

func normalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "-", "")
}

func (m *Manager) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM license_meta WHERE key = ?`, key).Scan(&value)
	return value, err
}

func (m *Manager) setMeta(ctx context.Context, key string, value string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO license_meta (key, value)
		VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// machineID hashes the first hardware MAC address, falling back to the
// hostname when no interface is available.
func machineID() string {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
				continue
			}
			sum := sha256.Sum256([]byte(iface.HardwareAddr.String()))
			return hex.EncodeToString(sum[:])[:16]
		}
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	sum := sha256.Sum256([]byte(host))
	return hex.EncodeToString(sum[:])[:16]
}
