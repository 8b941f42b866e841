// Package probe reports encrypted containers found on disks without unlocking them.
package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/deploymenttheory/go-cryptodisk/pkg/app"
	"github.com/deploymenttheory/go-cryptodisk/pkg/services"
	"gopkg.in/yaml.v3"
)

// Request names the disks to probe
type Request struct {
	Sources []string
}

// Result is the outcome for one disk
type Result struct {
	Source     string                      `json:"source" yaml:"source"`
	Containers []services.ContainerSummary `json:"containers,omitempty" yaml:"containers,omitempty"`
	Error      string                      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Response holds one result per probed disk
type Response struct {
	Results []Result `json:"results" yaml:"results"`
}

// Validate validates a probe request
func (r *Request) Validate() error {
	if len(r.Sources) == 0 {
		return app.NewError(app.ErrCodeInvalidInput, "at least one disk is required", nil)
	}
	for _, source := range r.Sources {
		if strings.TrimSpace(source) == "" {
			return app.NewError(app.ErrCodeInvalidInput, "disk name must not be empty", nil)
		}
	}
	return nil
}

// Handle probes every source. A disk without a container is reported, not treated as a failure.
// With a single source, any other failure is returned as the error.
func Handle(ctx *app.Context, svc services.Prober, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	response := &Response{}
	for i, source := range req.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ctx.Progress("Probing "+source, (i*100)/len(req.Sources))

		result := Result{Source: source}
		summaries, err := svc.Probe(source)
		switch {
		case err == nil:
			result.Containers = summaries
		case errors.Is(err, types.ErrNotFound):
		case len(req.Sources) == 1:
			return nil, app.FromError(err)
		default:
			ctx.Log(fmt.Sprintf("Probe of %s failed: %v", source, err))
			result.Error = app.Diagnostic(err)
		}
		response.Results = append(response.Results, result)
	}
	ctx.Progress("Complete", 100)
	return response, nil
}

// FormatOutput writes probe results to w in the given format
func FormatOutput(w io.Writer, response *Response, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		encoder.SetIndent(2)
		return encoder.Encode(response)
	case "table":
		return formatTable(w, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func formatTable(w io.Writer, response *Response) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "DISK\tFORMAT\tVERSION\tCIPHER\tMODE\tHASH\tKEY BITS\tUUID\tSLOTS\n")
	fmt.Fprintf(tw, "----\t------\t-------\t------\t----\t----\t--------\t----\t-----\n")
	for _, result := range response.Results {
		if result.Error != "" {
			fmt.Fprintf(tw, "%s\terror: %s\t\t\t\t\t\t\t\n", result.Source, result.Error)
			continue
		}
		if len(result.Containers) == 0 {
			fmt.Fprintf(tw, "%s\t-\t\t\t\t\t\t\t\n", result.Source)
			continue
		}
		for _, c := range result.Containers {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
				result.Source, c.Format, c.Version, c.Cipher, c.Mode, c.Hash, c.KeyBits, c.UUID, formatSlots(c.EnabledSlots))
		}
	}
	return tw.Flush()
}

func formatSlots(slots []int) string {
	if len(slots) == 0 {
		return "none"
	}
	parts := make([]string, len(slots))
	for i, slot := range slots {
		parts[i] = fmt.Sprint(slot)
	}
	return strings.Join(parts, ",")
}
