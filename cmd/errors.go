package cmd

import "fmt"

// ScanNotFoundError indicates a stored scan lookup failure.
type ScanNotFoundError struct {
	ID string
}

func (e *ScanNotFoundError) Error() string {
	return fmt.Sprintf("scan %s not found (list stored scans with `cspgen scans list`)", e.ID)
}

// SourceArgumentError signals that a command was given neither or both of a
// directory and a stored scan ID.
type SourceArgumentError struct {
	Command string
	Both    bool
}

func (e *SourceArgumentError) Error() string {
	if e.Both {
		return fmt.Sprintf("%s: pass either a directory or --scan-id, not both", e.Command)
	}
	return fmt.Sprintf("%s: a directory argument or --scan-id is required", e.Command)
}
