package export

import (
	"encoding/json"
	"os"

	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// writeJSON writes the full run result, indented, to path.
func (w *Writer) writeJSON(path string, res *pipeline.Result) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}
