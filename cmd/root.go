package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/ftahirops/xguard/config"
)

// Version is set at build time via ldflags.
var Version = "0.3.0"

// Options holds CLI configuration. Non-empty values override the config file.
type Options struct {
	ConfigPath string
	SourcePath string // "-" reads detection records from stdin
	RecordPath string
	Pace       bool
	TUI        bool
	LogFile    string

	GatewayURL string
	StatusAddr string
	LogLevel   string
	NoLock     bool
	NoStream   bool

	ShowAudit  bool
	AuditCount int
	InitConfig bool
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `xguard v%s - workstation security monitoring agent

Reads detection records (JSON lines), applies the alert rules and
dispatches alerts to the security gateway.

USAGE:
  xguard [flags]

SOURCE:
  -source PATH      Detection records, one JSON object per line (default: - for stdin)
  -record PATH      Tee every processed frame to PATH for later replay
  -pace             Replay at recorded speed instead of as fast as possible

OUTPUT:
  -tui              Interactive status view (logs go to -logfile)
  -logfile PATH     Log destination in -tui mode (default: xguard.log)
  -audit            Print the newest audit log rows and exit
  -n N              Rows to print with -audit (default: 20)

OVERRIDES:
  -config PATH      Config file (default: $XGUARD_CONFIG or ~/.config/xguard/config.yaml)
  -gateway URL      Gateway base URL
  -addr ADDR        Status server listen address ("" disables it)
  -log-level LEVEL  trace, debug, info, warn, error
  -no-lock          Never lock the local session
  -no-stream        Do not stream frames to the gateway

OTHER:
  -init-config      Write the effective config to -config and exit
  -version          Print version and exit

EXAMPLES:
  detector | xguard                     Live pipeline from a detector on stdin
  xguard -source session.jsonl -pace    Replay a recorded session in real time
  xguard -tui -record today.jsonl       Live view, recording every frame
  xguard -audit -n 50                   Show the last 50 audit rows

ENVIRONMENT:
  XGUARD_* variables and a .env file override the config file,
  e.g. XGUARD_GATEWAY_URL, XGUARD_ALERT_THRESHOLD=10s, XGUARD_LOG_LEVEL.
`, Version)
}

// Run parses flags and starts the application.
func Run() error {
	var opts Options
	var showVersion bool
	statusAddr := unsetFlag

	flag.StringVar(&opts.ConfigPath, "config", "", "Config file path")
	flag.StringVar(&opts.SourcePath, "source", "-", "Detection records (- for stdin)")
	flag.StringVar(&opts.RecordPath, "record", "", "Record processed frames to file for later replay")
	flag.BoolVar(&opts.Pace, "pace", false, "Replay at recorded speed")
	flag.BoolVar(&opts.TUI, "tui", false, "Interactive status view")
	flag.StringVar(&opts.LogFile, "logfile", "xguard.log", "Log destination in -tui mode")
	flag.StringVar(&opts.GatewayURL, "gateway", "", "Gateway base URL")
	flag.StringVar(&statusAddr, "addr", unsetFlag, "Status server listen address")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level")
	flag.BoolVar(&opts.NoLock, "no-lock", false, "Never lock the local session")
	flag.BoolVar(&opts.NoStream, "no-stream", false, "Do not stream frames to the gateway")
	flag.BoolVar(&opts.ShowAudit, "audit", false, "Print the audit log and exit")
	flag.IntVar(&opts.AuditCount, "n", 20, "Rows to print with -audit")
	flag.BoolVar(&opts.InitConfig, "init-config", false, "Write the effective config and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")

	flag.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Printf("xguard v%s\n", Version)
		return nil
	}
	if statusAddr != unsetFlag {
		opts.StatusAddr = statusAddr
	}

	path := opts.ConfigPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, opts, statusAddr != unsetFlag)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.InitConfig {
		if err := config.SaveFile(cfg, path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	}

	if opts.ShowAudit {
		return runAudit(os.Stdout, cfg.Storage.AuditLog, opts.AuditCount)
	}

	return runAgent(cfg, opts)
}

// unsetFlag distinguishes "-addr not given" from "-addr ''".
const unsetFlag = "\x00"

// applyOverrides folds CLI flags into cfg. addrSet reports whether -addr
// was given; an empty address then disables the status server.
func applyOverrides(cfg *config.Config, opts Options, addrSet bool) {
	if opts.GatewayURL != "" {
		cfg.Gateway.URL = opts.GatewayURL
	}
	if addrSet {
		cfg.Status.Addr = opts.StatusAddr
		cfg.Status.Enabled = opts.StatusAddr != ""
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.NoLock {
		cfg.Lock.Enabled = false
	}
	if opts.NoStream {
		cfg.Gateway.StreamEnabled = false
	}
}
