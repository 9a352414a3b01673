package bootstrap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

// Recovery config layouts. recovery.conf is read by servers before 12;
// newer servers want standby.signal plus settings in postgresql.auto.conf.
const (
	FormatRecoveryConf  = "recovery.conf"
	FormatStandbySignal = "standby.signal"

	autoConfFile = "postgresql.auto.conf"
)

// RecoveryParams points a standby at its upstream
type RecoveryParams struct {
	Format          string
	Host            string
	Port            int
	User            string
	Password        string
	ApplicationName string
	// TriggerFile is the absolute path of the promotion sentinel.
	TriggerFile string
}

// ConnInfo renders the libpq connection string for primary_conninfo
func (p RecoveryParams) ConnInfo() string {
	parts := []string{
		"host=" + connValue(p.Host),
		"port=" + strconv.Itoa(p.Port),
		"user=" + connValue(p.User),
	}
	if p.Password != "" {
		parts = append(parts, "password="+connValue(p.Password))
	}
	if p.ApplicationName != "" {
		parts = append(parts, "application_name="+connValue(p.ApplicationName))
	}
	return strings.Join(parts, " ")
}

// RecoveryFile is one file produced by RenderRecovery
type RecoveryFile struct {
	Name    string
	Content []byte
	// Append adds Content to an existing file instead of replacing it.
	Append bool
}

var templateFuncs = template.FuncMap{"quote": confQuote}

var recoveryConfTmpl = template.Must(template.New(FormatRecoveryConf).Funcs(templateFuncs).Parse(
	`# Written by pgha bootstrap sync
standby_mode = 'on'
primary_conninfo = {{ quote .ConnInfo }}
trigger_file = {{ quote .TriggerFile }}
recovery_target_timeline = 'latest'
`))

var autoConfTmpl = template.Must(template.New(autoConfFile).Funcs(templateFuncs).Parse(
	`# Written by pgha bootstrap sync
primary_conninfo = {{ quote .ConnInfo }}
promote_trigger_file = {{ quote .TriggerFile }}
recovery_target_timeline = 'latest'
`))

// RenderRecovery produces the files that make a data directory start as a
// standby of p.Host
func RenderRecovery(p RecoveryParams) ([]RecoveryFile, error) {
	switch p.Format {
	case FormatRecoveryConf, "":
		var buf bytes.Buffer
		if err := recoveryConfTmpl.Execute(&buf, p); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", FormatRecoveryConf, err)
		}
		return []RecoveryFile{{Name: FormatRecoveryConf, Content: buf.Bytes()}}, nil

	case FormatStandbySignal:
		var buf bytes.Buffer
		if err := autoConfTmpl.Execute(&buf, p); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", autoConfFile, err)
		}
		return []RecoveryFile{
			{Name: FormatStandbySignal},
			{Name: autoConfFile, Content: buf.Bytes(), Append: true},
		}, nil

	default:
		return nil, fmt.Errorf("unknown recovery format %q", p.Format)
	}
}

// WriteRecovery renders p into dir
func WriteRecovery(dir string, p RecoveryParams) error {
	files, err := RenderRecovery(p)
	if err != nil {
		return err
	}
	for _, f := range files {
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if f.Append {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		fh, err := os.OpenFile(filepath.Join(dir, f.Name), flags, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		if _, err := fh.Write(f.Content); err != nil {
			fh.Close()
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
		if err := fh.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", f.Name, err)
		}
	}
	return nil
}

// HasRecoveryConfig reports whether dir is set up to start as a standby
func HasRecoveryConfig(dir string) bool {
	for _, name := range []string{FormatRecoveryConf, FormatStandbySignal} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// connValue quotes a libpq keyword value when it needs it
func connValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\\t") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// confQuote quotes a postgresql.conf string value
func confQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
