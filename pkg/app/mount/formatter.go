package mount

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput writes mount results to w in the given format
func FormatOutput(w io.Writer, response *Response, format string) error {
	switch format {
	case "json":
		return formatJSON(w, response)
	case "yaml":
		return formatYAML(w, response)
	case "table":
		return formatTable(w, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// formatTable formats results as a table
func formatTable(w io.Writer, response *Response) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "NAME\tUUID\tFORMAT\tCIPHER\tSOURCE\tSIZE\n")
	fmt.Fprintf(tw, "----\t----\t------\t------\t------\t----\n")
	for _, device := range response.Devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			device.Name, device.UUID, device.Format, device.Cipher, device.Source,
			FormatSize(device.TotalSectors*device.SectorSize))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if response.Dump != nil {
		fmt.Fprintf(w, "\nWrote %d sectors (%s) from %s to %s\n",
			response.Dump.Count, FormatSize(uint64(response.Dump.Bytes)), response.Dump.Device, response.Dump.Path)
	}
	return nil
}

// formatJSON formats results as JSON
func formatJSON(w io.Writer, response *Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// formatYAML formats results as YAML
func formatYAML(w io.Writer, response *Response) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(response)
}
