package cmd

import (
	"fmt"
	"io"

	"github.com/ftahirops/xguard/engine"
	"github.com/ftahirops/xguard/ui"
)

// runAudit prints the newest n audit rows, newest first.
func runAudit(w io.Writer, path string, n int) error {
	if n <= 0 {
		n = 20
	}
	recs, err := engine.TailAuditLog(path, n)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintf(w, "no alerts recorded in %s\n", path)
		return nil
	}
	fmt.Fprintln(w, ui.RenderAuditTable(recs))
	return nil
}
